package tools

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/promptloop/promptloop/chat"
)

// WeatherInput defines the input for the Weather tool.
type WeatherInput struct {
	Location string `json:"location" jsonschema:"required,description=A location to fetch the weather for"`
}

// Weather returns a demo weather tool with made-up readings, useful for
// exercising tool-call plumbing without a real backend service.
func Weather() chat.Tool {
	conditions := []string{"sunny", "cloudy", "rainy", "windy"}
	return chat.NewTool(
		"get_weather",
		"Returns the weather for a location",
		func(ctx context.Context, in WeatherInput) (string, error) {
			return fmt.Sprintf("The weather in %s is %d degrees and %s",
				in.Location, 9+rand.Intn(22), conditions[rand.Intn(len(conditions))]), nil
		},
	)
}
