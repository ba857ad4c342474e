// Package equipment groups points by the physical device they live on and
// resolves point configuration against the discovered device catalogs.
package equipment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"boptest2bacnet/internal/config"
	"boptest2bacnet/internal/core/domain"
	"boptest2bacnet/internal/core/point"
	"boptest2bacnet/internal/core/port"
	"boptest2bacnet/internal/units"

	"go.uber.org/zap"
)

// Equipment is one configured equipment unit. Point membership is fixed
// after loading.
type Equipment struct {
	Name   string
	Device port.DeviceClient
	Points []point.Point
}

// Registry holds every loaded equipment unit and the shared device
// connections. Built once at startup; read-only afterwards.
type Registry struct {
	logger     *zap.Logger
	equipments []*Equipment
	devices    map[string]port.DeviceClient
}

// LoadDirectory reads every *.json equipment record in dir and builds the
// registry. Per-point failures (bad configuration, unresolvable names) drop
// the point and continue; per-file failures drop the file and continue.
// Only an unreadable directory is fatal.
func LoadDirectory(ctx context.Context, dir string, provider port.DeviceClientProvider, conv *units.Registry, logger *zap.Logger) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read equipment dir: %w", err)
	}

	r := &Registry{
		logger:  logger,
		devices: map[string]port.DeviceClient{},
	}
	catalogs := map[string]map[string]domain.Endpoint{}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		rec, err := config.LoadEquipmentRecord(path)
		if err != nil {
			logger.Error("skipping equipment record", zap.String("file", name), zap.Error(err))
			continue
		}

		dev, catalog, err := r.deviceFor(ctx, rec.DeviceAddress, provider, catalogs)
		if err != nil {
			logger.Error("skipping equipment, device unavailable",
				zap.String("equipment", rec.EquipmentName),
				zap.String("device", rec.DeviceAddress),
				zap.Error(err))
			continue
		}

		eq := &Equipment{Name: rec.EquipmentName, Device: dev}
		for _, pc := range rec.Points {
			p, err := r.buildPoint(pc, dev, catalog, conv)
			if err != nil {
				logger.Error("dropping point",
					zap.String("equipment", rec.EquipmentName),
					zap.String("point", pc.Name),
					zap.Error(err))
				continue
			}
			eq.Points = append(eq.Points, p)
		}

		// an equipment with zero valid points stays registered; it simply
		// contributes nothing to sync
		r.equipments = append(r.equipments, eq)
		logger.Info("loaded equipment",
			zap.String("equipment", eq.Name),
			zap.String("device", rec.DeviceAddress),
			zap.Int("points", len(eq.Points)))
	}
	return r, nil
}

// deviceFor returns the shared connection for an address, creating it and
// discovering its endpoint catalog on first use.
func (r *Registry) deviceFor(ctx context.Context, address string, provider port.DeviceClientProvider, catalogs map[string]map[string]domain.Endpoint) (port.DeviceClient, map[string]domain.Endpoint, error) {
	if dev, ok := r.devices[address]; ok {
		return dev, catalogs[address], nil
	}
	dev, err := provider(address)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := dev.DiscoverEndpoints(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: discover endpoints on %s: %w", domain.ErrTransport, address, err)
	}
	r.devices[address] = dev
	catalogs[address] = catalog
	r.logger.Info("discovered device endpoints",
		zap.String("device", address),
		zap.Int("endpoints", len(catalog)))
	return dev, catalog, nil
}

func (r *Registry) buildPoint(pc config.PointRecord, dev port.DeviceClient, catalog map[string]domain.Endpoint, conv *units.Registry) (point.Point, error) {
	if _, ok := catalog[pc.Name]; !ok {
		return nil, fmt.Errorf("%w: point %q not present on device %s", domain.ErrResolution, pc.Name, dev.Address())
	}
	p, err := point.New(pc, conv, r.logger)
	if err != nil {
		return nil, err
	}
	instance, ok := dev.InstanceNumber(pc.Name, p.ObjectType())
	if !ok {
		return nil, fmt.Errorf("%w: no %s instance for point %q on device %s", domain.ErrResolution, p.ObjectType(), pc.Name, dev.Address())
	}
	p.AssignInstance(instance)
	return p, nil
}

// Equipments returns the loaded units in configuration order.
func (r *Registry) Equipments() []*Equipment {
	return r.equipments
}

// Devices returns every distinct device connection.
func (r *Registry) Devices() []port.DeviceClient {
	addrs := make([]string, 0, len(r.devices))
	for a := range r.devices {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	out := make([]port.DeviceClient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, r.devices[a])
	}
	return out
}

// PointCount is the number of live points across all equipment.
func (r *Registry) PointCount() int {
	n := 0
	for _, eq := range r.equipments {
		n += len(eq.Points)
	}
	return n
}

// PendingByDevice groups points awaiting a device write by their owning
// connection.
func (r *Registry) PendingByDevice() map[port.DeviceClient][]point.Point {
	out := map[port.DeviceClient][]point.Point{}
	for _, eq := range r.equipments {
		for _, p := range eq.Points {
			if p.HasPendingSync() {
				out[eq.Device] = append(out[eq.Device], p)
			}
		}
	}
	return out
}

// OutputsByDevice groups device-to-simulator points by their owning
// connection for the read-back phase.
func (r *Registry) OutputsByDevice() map[port.DeviceClient][]point.OutputPoint {
	out := map[port.DeviceClient][]point.OutputPoint{}
	for _, eq := range r.equipments {
		for _, p := range eq.Points {
			if op, ok := p.(point.OutputPoint); ok {
				out[eq.Device] = append(out[eq.Device], op)
			}
		}
	}
	return out
}

// SyncClocks disables NTP on every device and imposes the scenario start
// time and timezone. Failures are logged per device and never fatal.
func (r *Registry) SyncClocks(ctx context.Context, startTimeUnix int64, timezone string) {
	for _, dev := range r.Devices() {
		log := r.logger.With(zap.String("device", dev.Address()))
		if err := dev.DisableNTP(ctx); err != nil {
			log.Error("failed to disable NTP, skipping clock sync", zap.Error(err))
			continue
		}
		if err := dev.SetTimeAndZone(ctx, startTimeUnix, timezone); err != nil {
			log.Error("failed to set device time and timezone", zap.Error(err))
			continue
		}
		log.Info("device clock synchronized", zap.String("timezone", timezone))
	}
}
