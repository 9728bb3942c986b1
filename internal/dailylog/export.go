/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package dailylog

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/friendsincode/muninn_traffic/internal/models"
)

// ExportFormat selects the hardcopy rendering.
type ExportFormat string

const (
	FormatText ExportFormat = "txt"
	FormatCSV  ExportFormat = "csv"
)

// ExportResult carries the rendered log plus the HTTP metadata to serve
// it as a download.
type ExportResult struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Export renders a daily log as a printable board copy (txt) or a
// spreadsheet-friendly dump (csv).
func (s *Service) Export(ctx context.Context, logID string, format ExportFormat) (*ExportResult, error) {
	log, err := s.Get(ctx, logID)
	if err != nil {
		return nil, err
	}

	var station models.Station
	if err := s.db.WithContext(ctx).Where("id = ?", log.StationID).First(&station).Error; err != nil {
		return nil, ErrStationNotFound
	}

	switch format {
	case FormatText:
		return &ExportResult{
			Data:        renderText(log, &station),
			Filename:    fmt.Sprintf("%s-log-%s.txt", slugify(station.Name), log.AirDate),
			ContentType: "text/plain; charset=utf-8",
		}, nil
	case FormatCSV:
		data, err := renderCSV(log)
		if err != nil {
			return nil, err
		}
		return &ExportResult{
			Data:        data,
			Filename:    fmt.Sprintf("%s-log-%s.csv", slugify(station.Name), log.AirDate),
			ContentType: "text/csv; charset=utf-8",
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown export format %q", ErrValidation, format)
	}
}

// renderText produces the printable board copy traffic hands to the
// studio: one block per hour, one timed line per element, advisories at
// the bottom.
func renderText(log *models.DailyLog, station *models.Station) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Broadcast Log - %s\n", station.Name)
	fmt.Fprintf(&buf, "Air date %s | revision %d | status %s", log.AirDate, log.RevisionNumber, log.Status)
	if log.Locked {
		buf.WriteString(" | LOCKED")
	}
	if log.Published {
		buf.WriteString(" | PUBLISHED")
	}
	buf.WriteString("\n\n")

	for hour := 0; hour < 24; hour++ {
		block := log.Hours[hour]
		if len(block.Elements) == 0 {
			continue
		}
		fmt.Fprintf(&buf, "Hour %02d  (content %s)\n", hour, clockDuration(block.TotalDurationSec))
		for _, elem := range block.Elements {
			line := elem.Title
			if elem.Artist != "" {
				line += " - " + elem.Artist
			}
			for _, tag := range elementTags(elem) {
				line += " [" + tag + "]"
			}
			fmt.Fprintf(&buf, "  %s  %-12s %6s  %s\n",
				clockTime(hour, elem.StartSec), elem.Type, clockDuration(elem.DurationSec), line)
		}
		buf.WriteString("\n")
	}

	if len(log.Conflicts) > 0 {
		buf.WriteString("Advisories:\n")
		for _, adv := range log.Conflicts {
			fmt.Fprintf(&buf, "  hour %02d [%s] %s\n", adv.Hour, adv.Code, adv.Detail)
		}
		buf.WriteString("\n")
	}
	if len(log.Oversell) > 0 {
		buf.WriteString("Oversell:\n")
		for _, adv := range log.Oversell {
			fmt.Fprintf(&buf, "  hour %02d [%s] %s\n", adv.Hour, adv.Code, adv.Detail)
		}
		buf.WriteString("\n")
	}

	return buf.Bytes()
}

// renderCSV dumps every element as one row, offsets in seconds, for
// import into billing spreadsheets.
func renderCSV(log *models.DailyLog) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{
		"hour", "start", "type", "title", "artist", "duration_sec",
		"scheduled_sec", "hard_start", "placeholder", "fallback",
		"content_item_id", "file_ref", "automation_id",
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for hour := 0; hour < 24; hour++ {
		for _, elem := range log.Hours[hour].Elements {
			automationID := ""
			if elem.AutomationID != nil {
				automationID = strconv.FormatInt(*elem.AutomationID, 10)
			}
			row := []string{
				strconv.Itoa(hour),
				clockTime(hour, elem.StartSec),
				string(elem.Type),
				elem.Title,
				elem.Artist,
				strconv.Itoa(elem.DurationSec),
				strconv.Itoa(elem.ScheduledSec),
				strconv.FormatBool(elem.HardStart),
				strconv.FormatBool(elem.Placeholder),
				strconv.FormatBool(elem.FallbackUsed),
				elem.ContentItemID,
				elem.FileRef,
				automationID,
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func elementTags(elem models.LogElement) []string {
	var tags []string
	if elem.HardStart {
		tags = append(tags, "hard")
	}
	if elem.Placeholder {
		tags = append(tags, "placeholder")
	}
	if elem.FallbackUsed {
		tags = append(tags, "fallback")
	}
	return tags
}

// clockTime renders an hour-relative offset as wall time. Overruns roll
// into the next hour instead of producing minute values past 59.
func clockTime(hour, offsetSec int) string {
	abs := hour*3600 + offsetSec
	return fmt.Sprintf("%02d:%02d:%02d", abs/3600, (abs%3600)/60, abs%60)
}

// clockDuration renders seconds as m:ss.
func clockDuration(sec int) string {
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}

func slugify(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "-")
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "station"
	}
	return b.String()
}
