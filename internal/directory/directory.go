package directory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spec-kit/vending-service/internal/config"
)

// ErrUnknownDoor is returned when a door has no mapping. Lookups fail
// closed: no unlock command is published for an unmapped door.
var ErrUnknownDoor = errors.New("unknown door")

// Mapping describes the physical address of a door.
type Mapping struct {
	DeviceID   string `json:"deviceId"`
	PortIndex  int    `json:"portIndex"`
	ProductSKU string `json:"productSku,omitempty"`
}

// Directory is a static door number to controller mapping. It is
// read-only after construction.
type Directory struct {
	doors map[int]Mapping
}

// defaultDoors matches the development controller wiring: two doors on
// one test board.
var defaultDoors = map[int]Mapping{
	1: {DeviceID: "esp-test-1", PortIndex: 0, ProductSKU: "SKU-ABC"},
	2: {DeviceID: "esp-test-1", PortIndex: 1, ProductSKU: "SKU-XYZ"},
}

// New builds a directory from an explicit map.
func New(doors map[int]Mapping) *Directory {
	copied := make(map[int]Mapping, len(doors))
	for door, m := range doors {
		copied[door] = m
	}
	return &Directory{doors: copied}
}

// Load builds the directory from configuration. Inline JSON wins over a
// file path; with neither set the built-in development map is used.
func Load(cfg config.DoorsConfig) (*Directory, error) {
	if cfg.MapJSON != "" {
		return parse([]byte(cfg.MapJSON))
	}
	if cfg.MapFile != "" {
		raw, err := os.ReadFile(cfg.MapFile)
		if err != nil {
			return nil, fmt.Errorf("read door map file: %w", err)
		}
		return parse(raw)
	}
	return New(defaultDoors), nil
}

func parse(raw []byte) (*Directory, error) {
	var byKey map[string]Mapping
	if err := json.Unmarshal(raw, &byKey); err != nil {
		return nil, fmt.Errorf("parse door map: %w", err)
	}

	doors := make(map[int]Mapping, len(byKey))
	for key, m := range byKey {
		door, err := strconv.Atoi(key)
		if err != nil || door <= 0 {
			return nil, fmt.Errorf("invalid door number %q in door map", key)
		}
		if m.DeviceID == "" {
			return nil, fmt.Errorf("door %d has no deviceId", door)
		}
		doors[door] = m
	}
	if len(doors) == 0 {
		return nil, errors.New("door map is empty")
	}
	return New(doors), nil
}

// Resolve returns the mapping for a door.
func (d *Directory) Resolve(door int) (Mapping, error) {
	m, ok := d.doors[door]
	if !ok {
		return Mapping{}, fmt.Errorf("%w: %d", ErrUnknownDoor, door)
	}
	return m, nil
}

// Doors returns the mapped door numbers in ascending order.
func (d *Directory) Doors() []int {
	doors := make([]int, 0, len(d.doors))
	for door := range d.doors {
		doors = append(doors, door)
	}
	sort.Ints(doors)
	return doors
}
