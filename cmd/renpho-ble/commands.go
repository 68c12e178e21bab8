package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chaz8081/renpho-ble/internal/ble"
	"github.com/chaz8081/renpho-ble/internal/bodycomp"
	"github.com/chaz8081/renpho-ble/internal/config"
	"github.com/chaz8081/renpho-ble/internal/publish"
	"github.com/chaz8081/renpho-ble/internal/scale"
)

// advertWindow bounds the scan for a configured scale's advertisement.
const advertWindow = 3 * time.Second

// MeasureCmd takes one reading and publishes it.
type MeasureCmd struct {
	Address       string `help:"Scale address. Scans by name prefix when empty."`
	Unit          string `help:"Display unit requested from the scale (kg or lb)."`
	NoComposition bool   `help:"Skip body-composition estimates."`
}

func (c *MeasureCmd) Run(a *app) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	unit, err := scale.ParseWeightUnit(firstNonEmpty(c.Unit, cfg.Measurement.Unit))
	if err != nil {
		return err
	}

	adapter := ble.NewTinygoAdapter()
	address := firstNonEmpty(c.Address, cfg.Device.Address)
	var found ble.Device
	if address == "" {
		fmt.Println(styles.Muted.Render("Scanning for a scale..."))
		found, err = ble.FindScale(adapter, cfg.Device.NamePrefix, cfg.Device.ScanTimeout)
		if err != nil {
			return err
		}
		address = found.Address
		a.log.Info("[BLE] found scale", "name", found.Name, "address", address, "rssi", found.RSSI)
	} else if cfg.Measurement.BodyComposition && !c.NoComposition {
		// only the advertisement carries the direct composition fields
		found, err = ble.FindAddress(adapter, address, advertWindow)
		if err != nil {
			a.log.Debug("[BLE] no advertisement before connecting", "address", address, "error", err)
		}
	}

	client := ble.NewClient(adapter, address, ble.ClientOptions{
		ConnectTimeout: cfg.Device.ConnectTimeout,
		Logger:         a.log,
	})
	sc := scale.New(client, scale.Options{
		Timeout: cfg.Measurement.Timeout,
		Logger:  a.log,
	})
	if err := sc.Connect(a.ctx); err != nil {
		return err
	}
	defer func() {
		if err := sc.Disconnect(); err != nil {
			a.log.Warn("[BLE] disconnect", "error", err)
		}
	}()

	fmt.Println(styles.Muted.Render("Step on the scale..."))
	res, err := sc.Measure(a.ctx, scale.MeasureOptions{
		Unit:            unit,
		BodyComposition: cfg.Measurement.BodyComposition && !c.NoComposition,
	})
	if err != nil {
		return err
	}

	mergeAdvertisement(&res, found)

	rec := publish.NewRecord(address, unit, res)
	pub := openPublishers(a, cfg)
	defer func() {
		if err := pub.Close(); err != nil {
			a.log.Warn("[PUBLISH] close", "error", err)
		}
	}()
	if err := pub.Publish(a.ctx, rec); err != nil {
		a.log.Warn("[PUBLISH] not every sink accepted the measurement", "error", err)
	}

	fmt.Println(renderRecord(rec))
	return nil
}

// mergeAdvertisement adds the fields dev advertised to the composition in
// res. It reports whether anything was merged.
func mergeAdvertisement(res *scale.Result, dev ble.Device) bool {
	if res.Composition == nil {
		return false
	}
	data, ok := dev.ManufacturerData[ble.RenphoManufacturerID]
	if !ok {
		return false
	}
	adv, err := bodycomp.DecodeAdvertisement(data)
	if err != nil {
		return false
	}
	res.Composition.ApplyAdvertisement(adv)
	return true
}

// openPublishers builds the configured sinks. A broker that cannot be
// reached is logged and skipped so the reading still reaches the journal.
func openPublishers(a *app, cfg *config.Config) *publish.Multi {
	pubs := []publish.Publisher{publish.NewLogPublisher(a.log)}
	if cfg.Journal.Enabled {
		j, err := publish.NewJournalPublisher(cfg.Journal.Path)
		if err != nil {
			a.log.Warn("[PUBLISH] journal unavailable", "error", err)
		} else {
			pubs = append(pubs, j)
		}
	}
	if cfg.AMQP.URL != "" {
		p, err := publish.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Queue, cfg.AMQP.PublishTimeout, a.log)
		if err != nil {
			a.log.Warn("[PUBLISH] amqp unavailable", "error", err)
		} else {
			pubs = append(pubs, p)
		}
	}
	return publish.NewMulti(pubs...)
}

// ScanCmd lists scales.
type ScanCmd struct {
	Duration time.Duration `help:"How long to scan (default: device.scan_timeout)."`
}

func (c *ScanCmd) Run(a *app) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	duration := c.Duration
	if duration <= 0 {
		duration = cfg.Device.ScanTimeout
	}

	fmt.Println(styles.Muted.Render(fmt.Sprintf("Scanning for %s...", duration)))
	devices, err := ble.ScanForScales(ble.NewTinygoAdapter(), cfg.Device.NamePrefix, duration)
	if err != nil {
		return err
	}
	fmt.Println(renderDevices(devices))
	return nil
}

// WatchCmd prints advertised body-composition data as it arrives.
type WatchCmd struct {
	Duration time.Duration `help:"How long to listen." default:"1m"`
}

func (c *WatchCmd) Run(a *app) error {
	if _, err := a.config(); err != nil {
		return err
	}
	adapter := ble.NewTinygoAdapter()
	if err := adapter.Enable(); err != nil {
		return fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(a.ctx, c.Duration)
	defer cancel()

	// scales repeat the same advertisement many times a second
	last := make(map[string]string)

	fmt.Println(styles.Muted.Render("Listening for advertisements, Ctrl+C to stop..."))
	_, err := adapter.Scan(ctx, func(d ble.Device) bool {
		data, ok := d.ManufacturerData[ble.RenphoManufacturerID]
		if !ok || last[d.Address] == string(data) {
			return false
		}
		last[d.Address] = string(data)
		adv, err := bodycomp.DecodeAdvertisement(data)
		if err != nil {
			a.log.Debug("[BLE] undecodable advertisement", "address", d.Address, "error", err)
			return false
		}
		fmt.Println(renderAdvertisement(d.Address, adv))
		return false
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// HistoryCmd prints journaled measurements.
type HistoryCmd struct {
	Limit int `help:"Show at most this many of the newest records (0 for all)." default:"10"`
}

func (c *HistoryCmd) Run(a *app) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	records, err := publish.ReadJournal(cfg.Journal.Path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Println(styles.Muted.Render("No measurements recorded yet."))
		return nil
	}
	if err != nil && len(records) == 0 {
		return err
	}
	if err != nil {
		a.log.Warn("[PUBLISH] journal is damaged, showing readable records", "error", err)
	}
	if c.Limit > 0 && len(records) > c.Limit {
		records = records[len(records)-c.Limit:]
	}
	fmt.Println(renderHistory(records))
	return nil
}

// DecodeAdvCmd decodes a blob offline.
type DecodeAdvCmd struct {
	Hex string `arg:"" help:"Manufacturer data as hex; spaces and colons are ignored."`
}

func (c *DecodeAdvCmd) Run(*app) error {
	data, err := parseHex(c.Hex)
	if err != nil {
		return err
	}
	adv, err := bodycomp.DecodeAdvertisement(data)
	if err != nil {
		return err
	}
	fmt.Println(renderAdvertisement("", adv))
	return nil
}

// InitConfigCmd writes the default config.
type InitConfigCmd struct{}

func (c *InitConfigCmd) Run(a *app) error {
	path := a.configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	written, err := config.WriteDefaultAt(path)
	if err != nil {
		return err
	}
	if written == "" {
		fmt.Println(styles.Muted.Render("Config already exists at " + path))
		return nil
	}
	fmt.Println(styles.Success.Render("Wrote " + written))
	return nil
}

func parseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return data, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
