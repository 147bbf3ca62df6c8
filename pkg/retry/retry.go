package retry

import "time"

// Config 重试策略。Attempts 为总尝试次数（含首次），Backoff 为两次尝试之间的等待。
type Config struct {
	Attempts int
	Backoff  time.Duration
}

// Do 执行 op，失败且 retryable 判定可重试时等待 Backoff 后再试，
// 直到成功或尝试次数用尽，返回最后一次的错误。
func Do(cfg Config, retryable func(error) bool, op func() error) error {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}

	var err error
	for attempt := 1; attempt <= cfg.Attempts; attempt++ {
		err = op()
		if err == nil {
			return nil
		}
		if !retryable(err) || attempt == cfg.Attempts {
			return err
		}
		time.Sleep(cfg.Backoff)
	}
	return err
}
