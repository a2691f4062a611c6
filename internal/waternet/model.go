// Package waternet reads the subset of an EPANET INP document needed to
// classify network elements: which ids are pumps, valves, pipes, tanks,
// reservoirs or junctions. Hydraulic attributes are ignored.
package waternet

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"waterscada/internal/controls"
)

// ElementType classifies a link or node in the network description.
type ElementType string

const (
	TypePump      ElementType = "pump"
	TypeValve     ElementType = "valve"
	TypeLink      ElementType = "link"
	TypeTank      ElementType = "tank"
	TypeReservoir ElementType = "reservoir"
	TypeJunction  ElementType = "junction"
)

// Model indexes element ids by network section.
type Model struct {
	pumps      map[string]struct{}
	valves     map[string]struct{}
	pipes      map[string]struct{}
	tanks      map[string]struct{}
	reservoirs map[string]struct{}
	junctions  map[string]struct{}
}

// Load parses the section headers and leading id column of an INP
// document. Missing documents report controls.ErrDocumentNotFound so
// callers treat model and rule lookups uniformly.
func Load(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", controls.ErrDocumentNotFound, path)
		}
		return nil, err
	}
	defer f.Close()
	return load(f)
}

func load(r io.Reader) (*Model, error) {
	m := &Model{
		pumps:      make(map[string]struct{}),
		valves:     make(map[string]struct{}),
		pipes:      make(map[string]struct{}),
		tanks:      make(map[string]struct{}),
		reservoirs: make(map[string]struct{}),
		junctions:  make(map[string]struct{}),
	}

	var current map[string]struct{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			switch strings.ToUpper(line) {
			case "[PUMPS]":
				current = m.pumps
			case "[VALVES]":
				current = m.valves
			case "[PIPES]":
				current = m.pipes
			case "[TANKS]":
				current = m.tanks
			case "[RESERVOIRS]":
				current = m.reservoirs
			case "[JUNCTIONS]":
				current = m.junctions
			default:
				current = nil
			}
			continue
		}
		if current == nil {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		current[fields[0]] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// LinkType classifies a link id; unlisted ids fall back to the generic
// link type, matching how unknown links are controlled.
func (m *Model) LinkType(id string) ElementType {
	if _, ok := m.pumps[id]; ok {
		return TypePump
	}
	if _, ok := m.valves[id]; ok {
		return TypeValve
	}
	return TypeLink
}

// NodeType classifies a node id; unlisted ids are treated as junctions.
func (m *Model) NodeType(id string) ElementType {
	if _, ok := m.tanks[id]; ok {
		return TypeTank
	}
	if _, ok := m.reservoirs[id]; ok {
		return TypeReservoir
	}
	return TypeJunction
}

// Tanks returns the tank ids in no particular order.
func (m *Model) Tanks() []string {
	ids := make([]string, 0, len(m.tanks))
	for id := range m.tanks {
		ids = append(ids, id)
	}
	return ids
}

// Pumps returns the pump ids in no particular order.
func (m *Model) Pumps() []string {
	ids := make([]string, 0, len(m.pumps))
	for id := range m.pumps {
		ids = append(ids, id)
	}
	return ids
}

// Valves returns the valve ids in no particular order.
func (m *Model) Valves() []string {
	ids := make([]string, 0, len(m.valves))
	for id := range m.valves {
		ids = append(ids, id)
	}
	return ids
}
