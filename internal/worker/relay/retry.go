package relay

import "time"

const (
	// initialBackoff は指数バックオフの初回遅延（5秒）。
	initialBackoff = 5 * time.Second
	// maxBackoff は指数バックオフの最大遅延（10分）。
	maxBackoff = 10 * time.Minute
	// maxAttempts はイベントを送信不能とみなす送信試行回数。
	maxAttempts = 10
)

// CalculateBackoff は失敗回数に基づいて指数バックオフ遅延を計算する。
// 初回5秒、2倍ずつ増加、最大10分。
func CalculateBackoff(failures int) time.Duration {
	delay := initialBackoff
	for i := 0; i < failures; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// NextAttempt は送信失敗後の試行回数・次回送信時刻・送信不能かどうかを返す。
func NextAttempt(prevAttempts int, now time.Time) (attempts int, next time.Time, dead bool) {
	attempts = prevAttempts + 1
	if attempts >= maxAttempts {
		return attempts, now, true
	}
	return attempts, now.Add(CalculateBackoff(attempts - 1)), false
}
