package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/smukkama/energy-kpi/internal/apperr"
)

// Directory resolves hierarchy entities to sensors. A sensor belongs to a
// room directly or through a room linked to a local room.
type Directory struct {
	db *DB
}

// NewDirectory creates a directory over db
func NewDirectory(db *DB) *Directory {
	return &Directory{db: db}
}

// roomScopes select the ids of the local rooms under an entity
var roomScopes = map[string]string{
	"sites": `SELECT r.id FROM rooms r
		JOIN floors f ON r.floor_id = f.id
		JOIN buildings b ON f.building_id = b.id
		WHERE b.site_id = $1`,
	"buildings": `SELECT r.id FROM rooms r
		JOIN floors f ON r.floor_id = f.id
		WHERE f.building_id = $1`,
	"floors": `SELECT r.id FROM rooms r WHERE r.floor_id = $1`,
	"rooms":  `SELECT r.id FROM rooms r WHERE r.id = $1`,
}

func sensorQuery(table string) string {
	scope := roomScopes[table]
	return fmt.Sprintf(`
		WITH local_rooms AS (%s)
		SELECT DISTINCT s.id
		FROM sensors s
		WHERE s.room_id IN (SELECT id FROM local_rooms)
		   OR s.room_id IN (
			SELECT l.linked_room_id FROM room_links l
			WHERE l.local_room_id IN (SELECT id FROM local_rooms)
		   )
		ORDER BY s.id`, scope)
}

func (d *Directory) exists(ctx context.Context, table, id string) error {
	var ok bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, table)
	if err := d.db.QueryRowContext(ctx, query, id).Scan(&ok); err != nil {
		return classify("check "+table, err)
	}
	if !ok {
		return apperr.NotFound(entityName[table], id)
	}
	return nil
}

var entityName = map[string]string{
	"sites":     "site",
	"buildings": "building",
	"floors":    "floor",
	"rooms":     "room",
}

func (d *Directory) sensorIDs(ctx context.Context, table, id string) ([]string, error) {
	if err := d.exists(ctx, table, id); err != nil {
		return nil, err
	}
	return d.strings(ctx, "list sensors", sensorQuery(table), id)
}

func (d *Directory) strings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify(op, err)
		}
		out = append(out, id)
	}
	return out, classify(op, rows.Err())
}

func (d *Directory) SensorIDsForSite(ctx context.Context, id string) ([]string, error) {
	return d.sensorIDs(ctx, "sites", id)
}

func (d *Directory) SensorIDsForBuilding(ctx context.Context, id string) ([]string, error) {
	return d.sensorIDs(ctx, "buildings", id)
}

func (d *Directory) SensorIDsForFloor(ctx context.Context, id string) ([]string, error) {
	return d.sensorIDs(ctx, "floors", id)
}

func (d *Directory) SensorIDsForRoom(ctx context.Context, id string) ([]string, error) {
	return d.sensorIDs(ctx, "rooms", id)
}

func (d *Directory) BuildingIDsForSite(ctx context.Context, siteID string) ([]string, error) {
	if err := d.exists(ctx, "sites", siteID); err != nil {
		return nil, err
	}
	return d.strings(ctx, "list buildings", `SELECT id FROM buildings WHERE site_id = $1 ORDER BY id`, siteID)
}

func (d *Directory) SiteOfBuilding(ctx context.Context, buildingID string) (string, error) {
	var site string
	err := d.db.QueryRowContext(ctx, `SELECT site_id FROM buildings WHERE id = $1`, buildingID).Scan(&site)
	if err == sql.ErrNoRows {
		return "", apperr.NotFound("building", buildingID)
	}
	if err != nil {
		return "", classify("get building site", err)
	}
	return site, nil
}
