// Package ratelimit はキー単位のスライディングウィンドウ方式レート制限を提供する。
//
// 固定ウィンドウ方式と異なり、ウィンドウ境界をまたいだバースト
// （境界直前にN回・直後にN回）を許さない。
package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"
)

// Result はHitの判定結果。
type Result struct {
	// Allowed は今回の試行が許可されたかどうか。
	Allowed bool
	// Remaining は今回の試行を記録した後、ウィンドウ内に残っている試行回数。
	Remaining int
	// RetryAfter は拒否時に再試行まで待つべき時間。許可時は0。
	RetryAfter time.Duration
}

// Limiter はキーごとに直近の試行時刻を保持し、移動ウィンドウ内の試行回数で判定する。
//
// 拒否された試行も記録する。判定に影響するのは直近Limit件の時刻だけなので、
// キーごとにLimit件のリングバッファを持つ。メモリ使用量はキー数×Limitで上限が決まる。
//
// キーごとにロックを持ち、同一キーの判定は線形化される。異なるキー同士は独立に動作する。
// ウィンドウ内に試行がなくなったキーは、アクセス時に遅延削除する。
type Limiter struct {
	rate Rate
	now  func() time.Time

	mu      sync.RWMutex
	windows map[string]*window

	lastSweep atomic.Int64 // UnixNano
}

// window は1キー分の試行時刻のリングバッファ。
type window struct {
	mu    sync.Mutex
	hits  []time.Time
	next  int
	count int
	// dead はスイープで削除済みであることを示す。
	// 削除と同時に到着したHitはキーを引き直す。
	dead bool
}

// New はLimiterを生成する。rate.Limitとrate.Windowは正の値であること。
func New(rate Rate) *Limiter {
	if rate.Limit <= 0 {
		rate.Limit = 1
	}
	if rate.Window <= 0 {
		rate.Window = time.Second
	}
	l := &Limiter{
		rate:    rate,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	l.lastSweep.Store(l.now().UnixNano())
	return l
}

// Rate は設定されているレートを返す。
func (l *Limiter) Rate() Rate {
	return l.rate
}

// Hit はkeyに対する試行を1回記録し、ウィンドウ内の予算に収まっているかを返す。
// 試行は [now-Window, now] の範囲にある既存の記録がLimit件未満の場合に許可される。
func (l *Limiter) Hit(key string) Result {
	now := l.now()
	l.maybeSweep(now)

	for {
		w := l.getOrCreate(key)

		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}
		res := w.hit(now, l.rate)
		w.mu.Unlock()
		return res
	}
}

// Len は現在追跡しているキー数を返す。テストおよびメトリクス用。
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.windows)
}

// getOrCreate はキーのウィンドウを取得または作成する。
func (l *Limiter) getOrCreate(key string) *window {
	l.mu.RLock()
	w, ok := l.windows[key]
	l.mu.RUnlock()
	if ok {
		return w
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// ダブルチェック
	if w, ok := l.windows[key]; ok {
		return w
	}
	w = &window{hits: make([]time.Time, l.rate.Limit)}
	l.windows[key] = w
	return w
}

// maybeSweep は前回のスイープからWindow以上経過していれば、
// ウィンドウ内に試行が残っていないキーを削除する。
func (l *Limiter) maybeSweep(now time.Time) {
	last := l.lastSweep.Load()
	if now.UnixNano()-last < int64(l.rate.Window) {
		return
	}
	if !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}
	l.sweep(now)
}

func (l *Limiter) sweep(now time.Time) {
	cut := now.Add(-l.rate.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.windows {
		w.mu.Lock()
		if newest, ok := w.newest(); !ok || newest.Before(cut) {
			w.dead = true
			delete(l.windows, key)
		}
		w.mu.Unlock()
	}
}

// hit は判定を行ってから、結果にかかわらず今回の時刻を記録する。
func (w *window) hit(now time.Time, rate Rate) Result {
	cut := now.Add(-rate.Window)
	limit := len(w.hits)

	// バッファが埋まっていれば最古の記録がウィンドウ外の場合のみ許可
	allowed := w.count < limit || w.hits[w.next].Before(cut)

	w.hits[w.next] = now
	w.next = (w.next + 1) % limit
	if w.count < limit {
		w.count++
	}

	if !allowed {
		return Result{Allowed: false, Remaining: 0, RetryAfter: rate.Window}
	}

	inWindow := 0
	for i := 0; i < w.count; i++ {
		if !w.hits[i].Before(cut) {
			inWindow++
		}
	}
	remaining := limit - inWindow
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining}
}

// newest は最新の記録時刻を返す。記録がなければfalseを返す。
func (w *window) newest() (time.Time, bool) {
	if w.count == 0 {
		return time.Time{}, false
	}
	limit := len(w.hits)
	return w.hits[(w.next-1+limit)%limit], true
}
