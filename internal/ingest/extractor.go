package ingest

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tinytelemetry/loglink/internal/logparse"
	"github.com/tinytelemetry/loglink/internal/model"
)

// ParseJSONEntry decodes one JSON entry line:
//
//	{"rank":0,"category":"rendering","level":"INFO","message":"...","uptime":1.5,"thread":"main"}
//
// "severity"/"verbosity" are accepted for level and "msg" for message. It
// returns nil when the line is not a JSON object with a message.
func ParseJSONEntry(line string, defaultRank int) *model.Entry {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil
	}

	message, ok := firstString(raw, "message", "msg")
	if !ok {
		return nil
	}

	entry := &model.Entry{
		Rank:      defaultRank,
		Category:  model.CategoryApplication,
		Verbosity: model.VerbosityInfo,
		Message:   message,
	}

	if v, ok := raw["rank"]; ok {
		if rank, ok := toInt(v); ok {
			entry.Rank = rank
		}
	}
	if s, ok := firstString(raw, "category"); ok {
		if c, err := model.ParseCategory(s); err == nil {
			entry.Category = c
		}
	}
	for _, key := range []string{"level", "severity", "verbosity"} {
		if v, ok := raw[key]; ok {
			entry.Verbosity = toVerbosity(v)
			break
		}
	}
	if v, ok := raw["uptime"]; ok {
		if f, ok := toFloat(v); ok {
			entry.Uptime = &f
		}
	}
	if s, ok := firstString(raw, "thread"); ok {
		entry.Thread = s
	}
	return entry
}

// CreateFallbackEntry builds an Application entry from a plain text line,
// taking the level from the text when one is present.
func CreateFallbackEntry(line string, rank int) *model.Entry {
	return &model.Entry{
		Rank:      rank,
		Category:  model.CategoryApplication,
		Verbosity: logparse.ExtractVerbosityFromText(line),
		Message:   line,
	}
}

func firstString(raw map[string]interface{}, keys ...string) (string, bool) {
	for _, key := range keys {
		v, ok := raw[key]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case string:
			return t, true
		default:
			return fmt.Sprint(t), true
		}
	}
	return "", false
}

func toInt(v interface{}) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func toVerbosity(v interface{}) model.Verbosity {
	switch t := v.(type) {
	case float64:
		if level := model.Verbosity(int(t)); level.Valid() {
			return level
		}
		return model.VerbosityInfo
	case string:
		return logparse.NormalizeVerbosity(t)
	}
	return model.VerbosityInfo
}
