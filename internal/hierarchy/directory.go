package hierarchy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/smukkama/energy-kpi/internal/apperr"
)

// Kind is a level of the site → building → floor → room → sensor tree
type Kind string

const (
	KindSite     Kind = "site"
	KindBuilding Kind = "building"
	KindFloor    Kind = "floor"
	KindRoom     Kind = "room"
	KindSensor   Kind = "sensor"
)

// ParseKind accepts singular or plural kind names
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.TrimSuffix(strings.ToLower(s), "s"))
	switch k {
	case KindSite, KindBuilding, KindFloor, KindRoom, KindSensor:
		return k, nil
	default:
		return "", apperr.Validation("unknown entity kind %q", s)
	}
}

// Directory resolves entities to the sensors they own. Absent entities
// yield an apperr NotFound error.
type Directory interface {
	SensorIDsForSite(ctx context.Context, id string) ([]string, error)
	SensorIDsForBuilding(ctx context.Context, id string) ([]string, error)
	SensorIDsForFloor(ctx context.Context, id string) ([]string, error)
	SensorIDsForRoom(ctx context.Context, id string) ([]string, error)
	BuildingIDsForSite(ctx context.Context, siteID string) ([]string, error)
	SiteOfBuilding(ctx context.Context, buildingID string) (string, error)
}

// Static is a Directory over an in-memory tree. Each map goes from a
// parent to its children; Rooms maps a room to its sensors.
type Static struct {
	Sites     map[string][]string
	Buildings map[string][]string
	Floors    map[string][]string
	Rooms     map[string][]string
}

func (s *Static) SensorIDsForRoom(_ context.Context, id string) ([]string, error) {
	sensors, ok := s.Rooms[id]
	if !ok {
		return nil, apperr.NotFound("room", id)
	}
	return uniqueSorted(sensors), nil
}

func (s *Static) SensorIDsForFloor(ctx context.Context, id string) ([]string, error) {
	rooms, ok := s.Floors[id]
	if !ok {
		return nil, apperr.NotFound("floor", id)
	}
	return s.collect(ctx, rooms, s.SensorIDsForRoom)
}

func (s *Static) SensorIDsForBuilding(ctx context.Context, id string) ([]string, error) {
	floors, ok := s.Buildings[id]
	if !ok {
		return nil, apperr.NotFound("building", id)
	}
	return s.collect(ctx, floors, s.SensorIDsForFloor)
}

func (s *Static) SensorIDsForSite(ctx context.Context, id string) ([]string, error) {
	buildings, ok := s.Sites[id]
	if !ok {
		return nil, apperr.NotFound("site", id)
	}
	return s.collect(ctx, buildings, s.SensorIDsForBuilding)
}

func (s *Static) BuildingIDsForSite(_ context.Context, siteID string) ([]string, error) {
	buildings, ok := s.Sites[siteID]
	if !ok {
		return nil, apperr.NotFound("site", siteID)
	}
	return uniqueSorted(buildings), nil
}

func (s *Static) SiteOfBuilding(_ context.Context, buildingID string) (string, error) {
	for site, buildings := range s.Sites {
		for _, b := range buildings {
			if b == buildingID {
				return site, nil
			}
		}
	}
	return "", apperr.NotFound("building", buildingID)
}

// collect unions the sensors of children; dangling child references are skipped
func (s *Static) collect(ctx context.Context, children []string, lookup func(context.Context, string) ([]string, error)) ([]string, error) {
	var all []string
	for _, child := range children {
		ids, err := lookup(ctx, child)
		if apperr.KindOf(err) == apperr.KindNotFound {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", child, err)
		}
		all = append(all, ids...)
	}
	return uniqueSorted(all), nil
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
