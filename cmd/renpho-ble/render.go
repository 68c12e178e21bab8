package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/chaz8081/renpho-ble/internal/ble"
	"github.com/chaz8081/renpho-ble/internal/bodycomp"
	"github.com/chaz8081/renpho-ble/internal/publish"
	"github.com/chaz8081/renpho-ble/internal/scale"
)

const kgToLb = 2.20462262

// Styles holds the lipgloss styles for terminal output.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Value   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Box     lipgloss.Style
}

// DefaultStyles returns the default color scheme.
func DefaultStyles() Styles {
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special := lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	return Styles{
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(highlight).
			Padding(0, 1),
		Label: lipgloss.NewStyle().
			Width(20).
			Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}),
		Value: lipgloss.NewStyle().
			Bold(true),
		Muted: lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}),
		Success: lipgloss.NewStyle().
			Foreground(special),
		Box: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight).
			Padding(0, 1),
	}
}

var styles = DefaultStyles()

type row struct {
	label string
	value string
}

func renderRows(title string, rows []row) string {
	lines := []string{styles.Title.Render(title)}
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top,
			styles.Label.Render(r.label),
			styles.Value.Render(r.value),
		))
	}
	return styles.Box.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func formatWeight(kg float64, unit scale.WeightUnit) string {
	if unit == scale.Pounds {
		return fmt.Sprintf("%.1f lb", kg*kgToLb)
	}
	return fmt.Sprintf("%.2f kg", kg)
}

func recordRows(rec publish.Record) []row {
	rows := []row{
		{"Time", rec.Timestamp.Local().Format("2006-01-02 15:04:05")},
		{"Weight", formatWeight(rec.WeightKg, rec.Unit)},
		{"Impedance", fmt.Sprintf("%.1f Ω", rec.Impedance)},
		{"Resistance", fmt.Sprintf("%d / %d", rec.Resistance1, rec.Resistance2)},
	}
	if c := rec.Composition; c != nil {
		rows = append(rows,
			row{"Body fat", fmt.Sprintf("%.1f %%", c.BodyFatPct)},
			row{"Body water", fmt.Sprintf("%.1f %%", c.BodyWaterPct)},
			row{"Muscle mass", formatWeight(c.MuscleMassKg, rec.Unit)},
			row{"Bone mass", formatWeight(c.BoneMassKg, rec.Unit)},
		)
		if c.Advertised {
			rows = append(rows, advertisedRows(c.MetabolicAge, c.ProteinPct, c.SubcutaneousFatPct, c.VisceralFatGrade, c.LeanBodyMassKg)...)
		}
	}
	return rows
}

func advertisedRows(age int, protein, subcutaneous float64, visceral int, lean float64) []row {
	return []row{
		{"Metabolic age", fmt.Sprintf("%d", age)},
		{"Protein", fmt.Sprintf("%.1f %%", protein)},
		{"Subcutaneous fat", fmt.Sprintf("%.1f %%", subcutaneous)},
		{"Visceral fat", fmt.Sprintf("%d", visceral)},
		{"Lean body mass", fmt.Sprintf("%.1f kg", lean)},
	}
}

func renderRecord(rec publish.Record) string {
	return renderRows("Measurement", recordRows(rec))
}

func renderAdvertisement(address string, adv bodycomp.Advertisement) string {
	title := "Advertisement"
	if address != "" {
		title += " " + address
	}
	rows := advertisedRows(adv.MetabolicAge, adv.ProteinPct, adv.SubcutaneousFatPct, adv.VisceralFatGrade, adv.LeanBodyMassKg)
	rows = append(rows, row{"Body water", fmt.Sprintf("%.1f %%", adv.BodyWaterPct)})
	return renderRows(title, rows)
}

func renderDevices(devices []ble.Device) string {
	if len(devices) == 0 {
		return styles.Muted.Render("No scales found.")
	}
	rows := make([]row, 0, len(devices))
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		rows = append(rows, row{d.Address, fmt.Sprintf("%s  %d dBm", name, d.RSSI)})
	}
	return renderRows(fmt.Sprintf("%d scale(s)", len(devices)), rows)
}

func renderHistory(records []publish.Record) string {
	if len(records) == 0 {
		return styles.Muted.Render("No measurements recorded yet.")
	}
	var b strings.Builder
	b.WriteString(styles.Title.Render(fmt.Sprintf("%d measurement(s)", len(records))))
	for _, rec := range records {
		line := fmt.Sprintf("%s  %s", rec.Timestamp.Local().Format("2006-01-02 15:04"), formatWeight(rec.WeightKg, rec.Unit))
		if c := rec.Composition; c != nil {
			line += fmt.Sprintf("  fat %.1f%%  water %.1f%%", c.BodyFatPct, c.BodyWaterPct)
		}
		b.WriteString("\n" + styles.Value.Render(line))
	}
	return b.String()
}
