package diversity

// Controller tracks the population diversity score across generations
// and doubles the active mutation rate after the score stays below
// threshold for window consecutive generations. The boost reverts as
// soon as a generation scores above threshold again. It also reports
// whether fresh, non-mutated strategies should be injected while the
// boost is active.
type Controller struct {
	baseRate    float64
	threshold   float64
	window      int
	injectFresh bool

	consecutiveLow int
	boosted        bool
}

// NewController builds a controller around the configured baseline
// mutation rate. window is the number of consecutive low-diversity
// generations tolerated before intervening.
func NewController(baseRate, threshold float64, window int, injectFresh bool) *Controller {
	if window < 1 {
		window = 1
	}
	return &Controller{
		baseRate:    baseRate,
		threshold:   threshold,
		window:      window,
		injectFresh: injectFresh,
	}
}

// Observe records one generation's diversity score and returns the
// mutation rate to use for the next generation.
func (c *Controller) Observe(score float64) float64 {
	if score < c.threshold {
		c.consecutiveLow++
		if c.consecutiveLow >= c.window {
			c.boosted = true
		}
	} else {
		c.consecutiveLow = 0
		c.boosted = false
	}
	return c.Rate()
}

// Rate returns the currently active mutation rate.
func (c *Controller) Rate() float64 {
	if c.boosted {
		return c.baseRate * 2
	}
	return c.baseRate
}

// Boosted reports whether the low-diversity intervention is active.
func (c *Controller) Boosted() bool {
	return c.boosted
}

// ShouldInject reports whether fresh strategies should be seeded into
// the next generation. Injection only happens while the boost is active
// and only when enabled by configuration.
func (c *Controller) ShouldInject() bool {
	return c.boosted && c.injectFresh
}
