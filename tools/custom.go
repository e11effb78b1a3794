// Copyright (c) Microsoft. All rights reserved.

package tools

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"strings"

	"github.com/local-agents/ollama-agent/agent"
)

// ShortURLBase prefixes shortened URLs.
const ShortURLBase = "https://short.ly/"

type weatherArgs struct {
	City string `json:"city" jsonschema:"description=The name of the city to get weather for,required"`
}

// Weather is the mock report returned by weather_checker.
type Weather struct {
	City        string `json:"city"`
	Temperature string `json:"temperature"`
	Humidity    string `json:"humidity"`
	Conditions  string `json:"conditions"`
	WindSpeed   string `json:"wind_speed"`
}

func (w Weather) String() string {
	return fmt.Sprintf("Weather in %s: %s, %s, Humidity: %s, Wind: %s",
		w.City, w.Temperature, w.Conditions, w.Humidity, w.WindSpeed)
}

// WeatherTool returns mock weather for a city.
func WeatherTool() agent.Tool {
	return agent.NewTypedTool("weather_checker",
		"Gets current weather information for a given city: temperature, humidity and conditions.",
		func(ctx context.Context, args weatherArgs) (any, error) {
			city := strings.TrimSpace(args.City)
			if city == "" {
				return nil, &agent.ToolError{ToolName: "weather_checker", Message: "city is required", Err: agent.ErrToolExecution}
			}
			return Weather{
				City:        city,
				Temperature: "22°C",
				Humidity:    "65%",
				Conditions:  "Partly cloudy",
				WindSpeed:   "10 km/h",
			}.String(), nil
		},
	)
}

type textArgs struct {
	Text string `json:"text" jsonschema:"description=The text to analyze,required"`
}

// TextStats are the statistics reported by text_analyzer.
type TextStats struct {
	Words              int     `json:"word_count"`
	Characters         int     `json:"character_count"`
	CharactersNoSpaces int     `json:"character_count_no_spaces"`
	Sentences          int     `json:"sentence_count"`
	AverageWordLength  float64 `json:"average_word_length"`
}

// AnalyzeText counts words, characters and sentences in text. Sentences are
// the non-blank pieces between periods; only ASCII spaces are dropped from
// the no-spaces count.
func AnalyzeText(text string) TextStats {
	s := TextStats{
		Words:              len(strings.Fields(text)),
		Characters:         len([]rune(text)),
		CharactersNoSpaces: len([]rune(strings.ReplaceAll(text, " ", ""))),
	}
	for _, part := range strings.Split(text, ".") {
		if strings.TrimSpace(part) != "" {
			s.Sentences++
		}
	}
	if s.Words > 0 {
		s.AverageWordLength = math.Round(float64(s.CharactersNoSpaces)/float64(s.Words)*100) / 100
	}
	return s
}

func (s TextStats) String() string {
	return fmt.Sprintf("Text Analysis Results:\n- Words: %d\n- Characters: %d\n- Characters (no spaces): %d\n"+
		"- Sentences: %d\n- Average word length: %g characters",
		s.Words, s.Characters, s.CharactersNoSpaces, s.Sentences, s.AverageWordLength)
}

// TextAnalyzerTool reports text statistics.
func TextAnalyzerTool() agent.Tool {
	return agent.NewTypedTool("text_analyzer",
		"Analyzes text and provides statistics like word count, character count and sentence count.",
		func(ctx context.Context, args textArgs) (any, error) {
			return AnalyzeText(args.Text).String(), nil
		},
	)
}

type urlArgs struct {
	URL string `json:"url" jsonschema:"description=The URL to shorten,required"`
}

// ShortenURL derives a deterministic short URL from the first eight hex
// digits of the URL's MD5 sum.
func ShortenURL(url string) string {
	sum := md5.Sum([]byte(url))
	return ShortURLBase + hex.EncodeToString(sum[:])[:8]
}

// URLShortenerTool returns a mock shortened URL.
func URLShortenerTool() agent.Tool {
	return agent.NewTypedTool("url_shortener",
		"Creates a shortened version of a URL.",
		func(ctx context.Context, args urlArgs) (any, error) {
			if strings.TrimSpace(args.URL) == "" {
				return nil, &agent.ToolError{ToolName: "url_shortener", Message: "url is required", Err: agent.ErrToolExecution}
			}
			return fmt.Sprintf("Original URL: %s\nShortened URL: %s", args.URL, ShortenURL(args.URL)), nil
		},
	)
}
