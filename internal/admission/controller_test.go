package admission

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_ThrottlesWithinInterval(t *testing.T) {
	c := NewController(10) // 最小间隔 100ms
	base := time.Now()

	assert.True(t, c.Allow("cam-1", base))
	assert.False(t, c.Allow("cam-1", base.Add(50*time.Millisecond)))
	assert.True(t, c.Allow("cam-1", base.Add(150*time.Millisecond)))
}

func TestAllow_ExactBoundaryAdmitted(t *testing.T) {
	c := NewController(10)
	base := time.Now()

	assert.True(t, c.Allow("cam-1", base))
	// 恰好等于最小间隔的帧准入
	assert.True(t, c.Allow("cam-1", base.Add(100*time.Millisecond)))
}

func TestAllow_PerCameraIndependent(t *testing.T) {
	c := NewController(10)
	base := time.Now()

	assert.True(t, c.Allow("cam-1", base))
	assert.True(t, c.Allow("cam-2", base))
	assert.False(t, c.Allow("cam-1", base.Add(10*time.Millisecond)))
	assert.False(t, c.Allow("cam-2", base.Add(10*time.Millisecond)))
}

func TestAllow_ZeroFPSDisablesThrottle(t *testing.T) {
	c := NewController(0)
	base := time.Now()

	for i := 0; i < 100; i++ {
		assert.True(t, c.Allow("cam-1", base.Add(time.Duration(i)*time.Microsecond)))
	}
}

func TestAllow_OutOfOrderFrameDoesNotRewind(t *testing.T) {
	c := NewController(10)
	base := time.Now()

	assert.True(t, c.Allow("cam-1", base.Add(200*time.Millisecond)))

	// 更早时间戳的乱序帧被拒绝，且不回退已记录时间
	assert.False(t, c.Allow("cam-1", base.Add(150*time.Millisecond)))

	last, ok := c.LastAdmitted("cam-1")
	assert.True(t, ok)
	assert.Equal(t, base.Add(200*time.Millisecond), last)
}

func TestAllow_ConcurrentSingleAdmission(t *testing.T) {
	c := NewController(10)
	now := time.Now()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0

	// 同一时刻的并发帧最多准入一个
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Allow("cam-1", now) {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
}

func TestMinInterval(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, NewController(10).MinInterval())
	assert.Equal(t, time.Duration(0), NewController(0).MinInterval())
}
