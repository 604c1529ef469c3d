package areafit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsWithDefaults(t *testing.T) {
	opt := Options{}.withDefaults()

	assert.Equal(t, DefaultMaxImageSide, opt.MaxImageWidth)
	assert.Equal(t, DefaultMaxImageSide, opt.MaxImageHeight)
	assert.Equal(t, noBest, opt.MaxImageSize)
	assert.Equal(t, 1, opt.MinImageCount)
	assert.Equal(t, DefaultFitCallsLimit, opt.FitCallsLimit)
	assert.Equal(t, 1, opt.Workers)
}

func TestOptionsWithDefaults_KeepsExplicitValues(t *testing.T) {
	opt := Options{
		MaxImageWidth:  512,
		MaxImageHeight: 256,
		MaxImageSize:   100000,
		MinImageCount:  3,
		FitCallsLimit:  42,
		Workers:        2,
	}

	assert.Equal(t, opt, opt.withDefaults())
}

func TestOptionsValidate(t *testing.T) {
	valid := Options{
		MaxImageWidth:  512,
		MaxImageHeight: 512,
		MaxImageSize:   1 << 20,
		MinImageCount:  1,
		FitCallsLimit:  1000,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Options)
		want   error
	}{
		{"zero width", func(o *Options) { o.MaxImageWidth = 0 }, widthErr},
		{"zero height", func(o *Options) { o.MaxImageHeight = 0 }, heightErr},
		{"zero size", func(o *Options) { o.MaxImageSize = 0 }, sizeErr},
		{"zero image count", func(o *Options) { o.MinImageCount = 0 }, countErr},
		{"zero budget", func(o *Options) { o.FitCallsLimit = 0 }, budgetErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opt := valid
			tt.mutate(&opt)
			assert.ErrorIs(t, opt.Validate(), tt.want)
		})
	}
}

func TestOptionsString(t *testing.T) {
	s := Options{MaxImageWidth: 512, MaxImageHeight: 256, FitCallsLimit: 100}.String()

	assert.Contains(t, s, "512x256")
	assert.Contains(t, s, "budget=100")
	assert.Contains(t, s, "workers=1")
}

// vim: ts=4
