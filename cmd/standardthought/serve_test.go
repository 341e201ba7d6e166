package main

import (
	"testing"

	"standardthought/internal/ai"
	"standardthought/internal/config"
)

func TestWriteTimeoutCoversImageChain(t *testing.T) {
	images := newImageService(&config.Config{
		OpenAIKey:           "sk-test",
		ImageModelPrimary:   "gpt-image-1",
		ImageModelSecondary: "dall-e-3",
		ImageModelTertiary:  "dall-e-2",
	})

	got := writeTimeout(images)
	if budget := ai.ChainBudget(3); got <= budget {
		t.Fatalf("writeTimeout = %s, want more than the %s chain budget", got, budget)
	}
	if got <= 3*ai.AttemptTimeout {
		t.Fatalf("writeTimeout = %s does not leave room for three attempts", got)
	}
}
