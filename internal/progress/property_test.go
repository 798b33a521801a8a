package progress

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestCoalescingProperty checks that monotonically growing progress fires one
// update per bucket change, however many calls land in each bucket.
func TestCoalescingProperty(t *testing.T) {
	t.Parallel()

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("updates equal bucket changes", prop.ForAll(
		func(steps []int64, threshold int64) bool {
			m := NewMonitor(WithPolicy(meteredPolicy(threshold)))
			rec := &recorder{}
			m.AddListener(rec)
			src := m.NewSource("https://example.com", "GET", UnknownTotal)
			src.BeginTracking()

			var progress, changes int64
			for _, step := range steps {
				next := progress + step
				if Bucket(next, threshold) != Bucket(progress, threshold) {
					changes++
				}
				progress = next
				src.UpdateProgress(progress, UnknownTotal)
			}
			return int64(rec.Count(KindUpdate)) == changes
		},
		gen.SliceOf(gen.Int64Range(0, 5000)),
		gen.Int64Range(1, 10000),
	))

	properties.Property("completion always closes", prop.ForAll(
		func(expected, threshold int64) bool {
			m := NewMonitor(WithPolicy(meteredPolicy(threshold)))
			src := m.NewSource("r", "GET", expected)
			src.BeginTracking()
			src.UpdateProgress(expected/2, expected)
			if expected/2 != 0 && src.Closed() {
				return false
			}
			src.UpdateProgress(expected, expected)
			return src.State() == StateDelete
		},
		gen.Int64Range(1, 1<<24),
		gen.Int64Range(1, 1<<16),
	))

	properties.TestingRun(t)
}
