// Copyright (c) Microsoft. All rights reserved.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local-agents/ollama-agent/agent"
)

func invoke(t *testing.T, tool agent.Tool, args string) (any, error) {
	t.Helper()
	return tool.Invoke(context.Background(), json.RawMessage(args))
}

func TestRegister(t *testing.T) {
	reg, err := agent.NewRegistry()
	require.NoError(t, err)
	require.NoError(t, Register(reg, SetBase, SetCustom))
	assert.Equal(t, []string{"calculator", "get_time", "text_analyzer", "url_shortener", "weather_checker"}, reg.Names())

	err = Register(reg, SetBase)
	require.ErrorIs(t, err, agent.ErrDuplicateTool)
	assert.Equal(t, 5, reg.Len())
}

func TestRegisterUnknownSet(t *testing.T) {
	reg, err := agent.NewRegistry()
	require.NoError(t, err)
	require.Error(t, Register(reg, SetBase, Set("web")))
	assert.Zero(t, reg.Len())
}

func TestParseSet(t *testing.T) {
	s, err := ParseSet("custom")
	require.NoError(t, err)
	assert.Equal(t, SetCustom, s)
	_, err = ParseSet("nope")
	require.Error(t, err)
}

func TestTimeTool(t *testing.T) {
	fixed := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	out, err := invoke(t, TimeTool(), `{}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"time":     "2:07 PM",
		"date":     "Tuesday, March 5, 2024",
		"timezone": "UTC",
		"iso8601":  "2024-03-05T14:07:00Z",
	}, out)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"-4 + 10 / 4", -1.5},
		{"7 % 4", 3},
		{"sqrt(16) + pow(2, 10)", 1028},
		{"factorial(5)", 120},
		{"max(1, 9, 3) - min(4, 2)", 7},
		{"round(2.5) + floor(1.9) + ceil(0.1)", 5},
		{"abs(-3)", 3},
		{"2 * pi", 2 * 3.141592653589793},
	}
	for _, tt := range tests {
		got, err := Evaluate(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.InDelta(t, tt.want, got, 1e-9, tt.expr)
	}
}

func TestEvaluateErrors(t *testing.T) {
	for _, expr := range []string{
		"",
		"1 / 0",
		"2 ^ 3",
		"os.Exit(1)",
		"foo(1)",
		"x + 1",
		"factorial(-1)",
		"factorial(2.5)",
		"sqrt(-1)",
		"pow(2)",
		`"text"`,
		"1 +",
	} {
		_, err := Evaluate(expr)
		assert.Error(t, err, expr)
	}
}

func TestCalculatorTool(t *testing.T) {
	out, err := invoke(t, CalculatorTool(), `{"expression":"6 * 7"}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"expression": "6 * 7", "result": 42.0}, out)

	_, err = invoke(t, CalculatorTool(), `{"expression":"1/0"}`)
	var te *agent.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "calculator", te.ToolName)
	assert.True(t, errors.Is(err, agent.ErrToolExecution))
}

func TestWeatherTool(t *testing.T) {
	out, err := invoke(t, WeatherTool(), `{"city":"Tokyo"}`)
	require.NoError(t, err)
	assert.Equal(t, "Weather in Tokyo: 22°C, Partly cloudy, Humidity: 65%, Wind: 10 km/h", out)

	_, err = invoke(t, WeatherTool(), `{"city":"  "}`)
	require.Error(t, err)
}

func TestAnalyzeText(t *testing.T) {
	s := AnalyzeText("The quick brown fox jumps over the lazy dog. This is a sample sentence for testing.")
	assert.Equal(t, TextStats{
		Words:              16,
		Characters:         83,
		CharactersNoSpaces: 68,
		Sentences:          2,
		AverageWordLength:  4.25,
	}, s)

	assert.Equal(t, TextStats{}, AnalyzeText(""))
}

func TestTextAnalyzerTool(t *testing.T) {
	out, err := invoke(t, TextAnalyzerTool(), `{"text":"Hi there."}`)
	require.NoError(t, err)
	assert.Equal(t, "Text Analysis Results:\n- Words: 2\n- Characters: 9\n- Characters (no spaces): 8\n"+
		"- Sentences: 1\n- Average word length: 4 characters", out)
}

func TestURLShortener(t *testing.T) {
	url := "https://www.example.com/very/long/path/to/some/resource"
	assert.Equal(t, "https://short.ly/403a932e", ShortenURL(url))

	out, err := invoke(t, URLShortenerTool(), `{"url":"`+url+`"}`)
	require.NoError(t, err)
	assert.Equal(t, "Original URL: "+url+"\nShortened URL: https://short.ly/403a932e", out)
}
