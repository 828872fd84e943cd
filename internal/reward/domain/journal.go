package domain

// Journal 分发结果的追加日志，用于事后核对部分成功的分发
type Journal interface {
	Append(result *DistributionResult) error
	FindByEvent(eventID string) ([]DistributionResult, error)
}
