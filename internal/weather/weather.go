// Package weather takes a one-shot snapshot of today's regional forecast:
// one request, one extracted sentence, and the icons that sentence implies.
// Nothing is cached and nothing is retried.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"

	appLog "deskcal/internal/log"
	"deskcal/internal/metrics"
	"deskcal/internal/model"
)

const (
	// DefaultURL is the JMA overview forecast for Kanagawa (area 140000).
	DefaultURL = "https://www.jma.go.jp/bosai/forecast/data/overview_forecast/140000.json"
	// DefaultRegion is the sentence prefix naming the region.
	DefaultRegion = "神奈川県は、"

	sentenceDelimiter = "。"
)

// Icon identifies a weather pictogram.
type Icon string

const (
	IconSun     Icon = "sun"
	IconCloudy  Icon = "cloudy"
	IconRain    Icon = "rain"
	IconSnow    Icon = "snow"
	IconThunder Icon = "thunder"
	IconWind    Icon = "wind"
)

type iconRule struct {
	keywords []string
	icon     Icon
}

// Rules are checked in order and every match contributes its icon.
var iconRules = []iconRule{
	{[]string{"晴れ"}, IconSun},
	{[]string{"曇り"}, IconCloudy},
	{[]string{"雨"}, IconRain},
	{[]string{"雪"}, IconSnow},
	{[]string{"雷", "稲妻"}, IconThunder},
	{[]string{"風"}, IconWind},
}

// Snapshot is today's forecast sentence and its icons.
type Snapshot struct {
	Icons       []Icon    `json:"icons"`
	Description string    `json:"description"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// Result is the outcome of FetchToday. Snapshot is nil unless Status is
// StatusOK.
type Result struct {
	Snapshot *Snapshot
	Status   model.Status
	Err      error
}

// Fetcher reads the forecast overview document.
type Fetcher struct {
	URL    string
	Region string
	Client *http.Client
	// Now supplies "today" for the "<day>日は" marker.
	Now func() time.Time
}

// NewFetcher fills in defaults for empty fields. A nil client means
// http.DefaultClient, which has no timeout.
func NewFetcher(url, region string, client *http.Client) *Fetcher {
	if url == "" {
		url = DefaultURL
	}
	if region == "" {
		region = DefaultRegion
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{URL: url, Region: region, Client: client, Now: time.Now}
}

type overview struct {
	PublishingOffice string `json:"publishingOffice"`
	ReportDatetime   string `json:"reportDatetime"`
	Text             string `json:"text"`
}

// FetchToday returns today's snapshot. It never fails the caller: transport,
// status and decoding errors are StatusDegraded, a document with no
// matching sentence is StatusEmpty.
func (f *Fetcher) FetchToday(ctx context.Context) Result {
	res := f.fetch(ctx)
	metrics.WeatherFetches.WithLabelValues(res.Status.String()).Inc()
	return res
}

func (f *Fetcher) fetch(ctx context.Context) Result {
	text, err := f.fetchText(ctx)
	if err != nil {
		appLog.Error("weather fetch failed", err, "url", f.URL)
		return Result{Status: model.StatusDegraded, Err: err}
	}

	now := f.Now()
	sentence, ok := ExtractSentence(text, f.Region, now.Day())
	if !ok {
		appLog.Debug("weather: no sentence for region or today", "region", f.Region, "day", now.Day())
		return Result{Status: model.StatusEmpty}
	}

	return Result{
		Snapshot: &Snapshot{
			Icons:       ClassifyIcons(sentence),
			Description: sentence,
			FetchedAt:   now,
		},
		Status: model.StatusOK,
	}
}

func (f *Fetcher) fetchText(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("weather source: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	var doc overview
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("weather source: decode: %w", err)
	}
	return doc.Text, nil
}

// ExtractSentence returns the first sentence, in document order, that
// contains region or "<day>日は". Digits are compared after folding
// full-width forms to ASCII.
func ExtractSentence(text, region string, day int) (string, bool) {
	marker := strconv.Itoa(day) + "日は"
	for _, line := range strings.Split(text, sentenceDelimiter) {
		folded := width.Narrow.String(line)
		if region != "" && strings.Contains(line, region) {
			return strings.TrimSpace(line), true
		}
		if strings.Contains(folded, marker) {
			return strings.TrimSpace(line), true
		}
	}
	return "", false
}

// ClassifyIcons returns every icon whose keywords appear in text, in rule
// order, or a single sun icon when nothing matches.
func ClassifyIcons(text string) []Icon {
	var icons []Icon
	for _, rule := range iconRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				icons = append(icons, rule.icon)
				break
			}
		}
	}
	if len(icons) == 0 {
		icons = append(icons, IconSun)
	}
	return icons
}
