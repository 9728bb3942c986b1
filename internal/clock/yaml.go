package clock

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/friendsincode/muninn_traffic/internal/models"
)

// TemplateFile is the on-disk YAML document for clock import/export.
type TemplateFile struct {
	Templates []TemplateDoc `yaml:"templates"`
}

// TemplateDoc is one template in a TemplateFile.
type TemplateDoc struct {
	Name      string    `yaml:"name"`
	StartHour int       `yaml:"start_hour"`
	EndHour   int       `yaml:"end_hour"`
	Slots     []SlotDoc `yaml:"slots"`
}

// SlotDoc is one slot in a TemplateDoc. Position is implied by order.
type SlotDoc struct {
	Type             string `yaml:"type"`
	Count            int    `yaml:"count"`
	FallbackType     string `yaml:"fallback_type,omitempty"`
	HardStart        bool   `yaml:"hard_start,omitempty"`
	OffsetSec        *int   `yaml:"offset_sec,omitempty"`
	FixedDurationSec *int   `yaml:"fixed_duration_sec,omitempty"`
	Anchor           string `yaml:"anchor,omitempty"`
}

// ImportYAML reads a TemplateFile and upserts its templates by name,
// returning how many were written. Every template is validated before
// anything is stored; one bad template rejects the whole file.
func (s *Service) ImportYAML(ctx context.Context, stationID string, r io.Reader) (int, error) {
	var file TemplateFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return 0, fmt.Errorf("decode template file: %w", err)
	}

	templates := make([]*models.ClockTemplate, 0, len(file.Templates))
	for _, doc := range file.Templates {
		tpl := docToTemplate(stationID, doc)
		if err := ValidateTemplate(tpl); err != nil {
			return 0, fmt.Errorf("template %q: %w", doc.Name, err)
		}
		templates = append(templates, tpl)
	}

	written := 0
	for _, tpl := range templates {
		var existing models.ClockTemplate
		err := s.db.WithContext(ctx).
			Where("station_id = ? AND name = ?", stationID, tpl.Name).
			First(&existing).Error
		if err == nil {
			tpl.ID = existing.ID
			if err := s.Update(ctx, tpl); err != nil {
				return written, err
			}
		} else {
			if err := s.Create(ctx, tpl); err != nil {
				return written, err
			}
		}
		written++
	}

	return written, nil
}

// ExportYAML writes a station's templates as a TemplateFile.
func (s *Service) ExportYAML(ctx context.Context, stationID string, w io.Writer) error {
	templates, err := s.ListByStation(ctx, stationID)
	if err != nil {
		return err
	}

	file := TemplateFile{Templates: make([]TemplateDoc, 0, len(templates))}
	for _, tpl := range templates {
		doc := TemplateDoc{
			Name:      tpl.Name,
			StartHour: tpl.StartHour,
			EndHour:   tpl.EndHour,
			Slots:     make([]SlotDoc, 0, len(tpl.Slots)),
		}
		for _, slot := range tpl.Slots {
			doc.Slots = append(doc.Slots, SlotDoc{
				Type:             string(slot.Type),
				Count:            slot.Count,
				FallbackType:     string(slot.FallbackType),
				HardStart:        slot.HardStart,
				OffsetSec:        slot.ScheduledOffsetSec,
				FixedDurationSec: slot.FixedDurationSec,
				Anchor:           string(slot.Anchor),
			})
		}
		file.Templates = append(file.Templates, doc)
	}

	enc := yaml.NewEncoder(w)
	defer enc.Close()
	return enc.Encode(file)
}

func docToTemplate(stationID string, doc TemplateDoc) *models.ClockTemplate {
	slots := make(models.ClockSlotList, 0, len(doc.Slots))
	for i, slotDoc := range doc.Slots {
		count := slotDoc.Count
		if count == 0 {
			count = 1
		}
		slots = append(slots, models.ClockSlot{
			Position:           i,
			Type:               models.ContentType(slotDoc.Type),
			Count:              count,
			FallbackType:       models.ContentType(slotDoc.FallbackType),
			HardStart:          slotDoc.HardStart,
			ScheduledOffsetSec: slotDoc.OffsetSec,
			FixedDurationSec:   slotDoc.FixedDurationSec,
			Anchor:             models.AnchorPosition(slotDoc.Anchor),
		})
	}

	return &models.ClockTemplate{
		StationID: stationID,
		Name:      doc.Name,
		StartHour: doc.StartHour,
		EndHour:   doc.EndHour,
		Slots:     slots,
	}
}
