package engine

import "errors"

var (
	ErrInvalidRiskParameters = errors.New("некорректные параметры риска")
	ErrDataIntegrity         = errors.New("некорректные рыночные данные")
	ErrEntryFailed           = errors.New("не удалось открыть позицию")
	ErrExitFailed            = errors.New("не удалось закрыть позицию")
)
