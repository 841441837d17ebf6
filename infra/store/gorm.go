package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dispatchsim/engine/core/logger"
	"github.com/dispatchsim/engine/core/model"
)

// unitRow is the persisted form of a unit. Equipment and personnel are
// stored as JSON blobs.
type unitRow struct {
	ID        string `gorm:"primaryKey"`
	StationID string `gorm:"index"`
	Class     string
	Type      string
	Status    string `gorm:"index"`
	Priority  int
	Equipment []byte
	Personnel []byte
}

func (unitRow) TableName() string { return "units" }

type stationRow struct {
	ID           string `gorm:"primaryKey"`
	Name         string
	Class        string
	Lat          float64
	Lon          float64
	BedCapacity  int
	HoldingCells int
}

func (stationRow) TableName() string { return "stations" }

// missionRow stores the requirement lists and transport manifests as JSON
// blobs. Malformed blobs degrade to empty lists on read.
type missionRow struct {
	ID                string `gorm:"primaryKey"`
	Type              string
	Lat               float64
	Lon               float64
	Status            string `gorm:"index"`
	TimingMinutes     float64
	BaseReward        int64
	RequiredUnits     []byte
	RequiredTraining  []byte
	RequiredEquipment []byte
	Patients          []byte
	Prisoners         []byte
	Modifiers         []byte
	Penalties         []byte
	ResolveAt         *time.Time
}

func (missionRow) TableName() string { return "missions" }

type assignmentRow struct {
	MissionID string `gorm:"primaryKey"`
	UnitID    string `gorm:"primaryKey"`
}

func (assignmentRow) TableName() string { return "assignments" }

type reservationRow struct {
	ID        string `gorm:"primaryKey"`
	StationID string `gorm:"index"`
	Kind      string
	UnitID    string
	ExpiresAt time.Time `gorm:"index"`
}

func (reservationRow) TableName() string { return "reservations" }

type walletRow struct {
	ID      int `gorm:"primaryKey"`
	Balance int64
}

func (walletRow) TableName() string { return "wallet" }

// Gorm is the durable store backed by a gorm database.
type Gorm struct {
	db  *gorm.DB
	log logger.Logger
}

// OpenSQLite opens (or creates) a sqlite database at the given path and
// migrates the schema.
func OpenSQLite(dsn string, log logger.Logger, debug bool) (*Gorm, error) {
	conf := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	if debug {
		conf.Logger = gormlogger.Default.LogMode(gormlogger.Info)
	}
	db, err := gorm.Open(sqlite.Open(dsn), conf)
	if err != nil {
		return nil, err
	}
	return NewGorm(db, log)
}

// NewGorm wraps an existing gorm database and migrates the schema.
func NewGorm(db *gorm.DB, log logger.Logger) (*Gorm, error) {
	if err := db.AutoMigrate(&unitRow{}, &stationRow{}, &missionRow{}, &assignmentRow{}, &reservationRow{}, &walletRow{}); err != nil {
		return nil, err
	}
	return &Gorm{db: db, log: log}, nil
}

// PutUnit inserts or replaces a unit.
func (g *Gorm) PutUnit(u model.Unit) error {
	equipment, _ := json.Marshal(u.Equipment)
	personnel, _ := json.Marshal(u.Personnel)
	row := unitRow{
		ID:        u.ID,
		StationID: u.StationID,
		Class:     string(u.Class),
		Type:      u.Type,
		Status:    string(u.Status),
		Priority:  u.Priority,
		Equipment: equipment,
		Personnel: personnel,
	}
	return g.db.Save(&row).Error
}

// PutStation inserts or replaces a station.
func (g *Gorm) PutStation(s model.Station) error {
	row := stationRow{
		ID:           s.ID,
		Name:         s.Name,
		Class:        string(s.Class),
		Lat:          s.Lat,
		Lon:          s.Lon,
		BedCapacity:  s.BedCapacity,
		HoldingCells: s.HoldingCells,
	}
	return g.db.Save(&row).Error
}

// PutMission inserts or replaces a mission.
func (g *Gorm) PutMission(m model.Mission) error {
	row := missionRow{
		ID:            m.ID,
		Type:          m.Type,
		Lat:           m.Lat,
		Lon:           m.Lon,
		Status:        string(m.Status),
		TimingMinutes: m.TimingMinutes,
		BaseReward:    m.BaseReward,
		ResolveAt:     m.ResolveAt,
	}
	row.RequiredUnits, _ = json.Marshal(m.RequiredUnits)
	row.RequiredTraining, _ = json.Marshal(m.RequiredTraining)
	row.RequiredEquipment, _ = json.Marshal(m.RequiredEquipment)
	row.Patients, _ = json.Marshal(m.Patients)
	row.Prisoners, _ = json.Marshal(m.Prisoners)
	row.Modifiers, _ = json.Marshal(m.Modifiers)
	row.Penalties, _ = json.Marshal(m.Penalties)
	return g.db.Save(&row).Error
}

func (g *Gorm) unitFromRow(r unitRow) model.Unit {
	u := model.Unit{
		ID:        r.ID,
		StationID: r.StationID,
		Class:     model.Class(r.Class),
		Type:      r.Type,
		Status:    model.UnitStatus(r.Status),
		Priority:  r.Priority,
	}
	if len(r.Equipment) > 0 {
		if err := json.Unmarshal(r.Equipment, &u.Equipment); err != nil {
			g.log.Warnf("unit %s: malformed equipment list: %v", r.ID, err)
		}
	}
	if len(r.Personnel) > 0 {
		if err := json.Unmarshal(r.Personnel, &u.Personnel); err != nil {
			g.log.Warnf("unit %s: malformed personnel list: %v", r.ID, err)
		}
	}
	return u
}

func (g *Gorm) missionFromRow(r missionRow) model.Mission {
	m := model.Mission{
		ID:            r.ID,
		Type:          r.Type,
		Lat:           r.Lat,
		Lon:           r.Lon,
		Status:        model.MissionStatus(r.Status),
		TimingMinutes: r.TimingMinutes,
		BaseReward:    r.BaseReward,
		ResolveAt:     r.ResolveAt,
	}
	m.RequiredUnits = model.ParseUnitRequirements(r.RequiredUnits, g.log)
	m.RequiredTraining = model.ParseCountRequirements(r.RequiredTraining, g.log)
	m.RequiredEquipment = model.ParseCountRequirements(r.RequiredEquipment, g.log)
	m.Patients = model.ParseTransportEntries(r.Patients, g.log)
	m.Prisoners = model.ParseTransportEntries(r.Prisoners, g.log)
	if len(r.Modifiers) > 0 {
		if err := json.Unmarshal(r.Modifiers, &m.Modifiers); err != nil {
			g.log.Warnf("mission %s: malformed modifier list: %v", r.ID, err)
		}
	}
	if len(r.Penalties) > 0 {
		if err := json.Unmarshal(r.Penalties, &m.Penalties); err != nil {
			g.log.Warnf("mission %s: malformed penalty list: %v", r.ID, err)
		}
	}
	return m
}

func (g *Gorm) Unit(id string) (model.Unit, error) {
	var row unitRow
	if err := g.db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Unit{}, model.ErrNotFound
		}
		return model.Unit{}, err
	}
	return g.unitFromRow(row), nil
}

func (g *Gorm) Units() ([]model.Unit, error) {
	var rows []unitRow
	if err := g.db.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Unit, 0, len(rows))
	for _, r := range rows {
		out = append(out, g.unitFromRow(r))
	}
	return out, nil
}

func (g *Gorm) AvailableUnits() ([]model.Unit, error) {
	var rows []unitRow
	if err := g.db.Order("id").Find(&rows, "status = ?", string(model.StatusAvailable)).Error; err != nil {
		return nil, err
	}
	out := make([]model.Unit, 0, len(rows))
	for _, r := range rows {
		out = append(out, g.unitFromRow(r))
	}
	return out, nil
}

func (g *Gorm) SetStatus(id string, st model.UnitStatus) error {
	res := g.db.Model(&unitRow{}).Where("id = ?", id).Update("status", string(st))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (g *Gorm) Station(id string) (model.Station, error) {
	var row stationRow
	if err := g.db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Station{}, model.ErrNotFound
		}
		return model.Station{}, err
	}
	return stationFromRow(row), nil
}

func stationFromRow(r stationRow) model.Station {
	return model.Station{
		ID:           r.ID,
		Name:         r.Name,
		Class:        model.Class(r.Class),
		Lat:          r.Lat,
		Lon:          r.Lon,
		BedCapacity:  r.BedCapacity,
		HoldingCells: r.HoldingCells,
	}
}

func (g *Gorm) Stations() ([]model.Station, error) {
	var rows []stationRow
	if err := g.db.Order("id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Station, 0, len(rows))
	for _, r := range rows {
		out = append(out, stationFromRow(r))
	}
	return out, nil
}

func (g *Gorm) Facilities(kind model.TransportKind) ([]model.Station, error) {
	q := g.db.Order("id")
	switch kind {
	case model.KindPatient:
		q = q.Where("bed_capacity > 0")
	case model.KindPrisoner:
		q = q.Where("holding_cells > 0")
	default:
		return nil, nil
	}
	var rows []stationRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.Station, 0, len(rows))
	for _, r := range rows {
		out = append(out, stationFromRow(r))
	}
	return out, nil
}

func (g *Gorm) Mission(id string) (model.Mission, error) {
	var row missionRow
	if err := g.db.First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Mission{}, model.ErrNotFound
		}
		return model.Mission{}, err
	}
	return g.missionFromRow(row), nil
}

func (g *Gorm) ActiveMissions() ([]model.Mission, error) {
	var rows []missionRow
	if err := g.db.Order("id").Find(&rows, "status = ?", string(model.MissionActive)).Error; err != nil {
		return nil, err
	}
	out := make([]model.Mission, 0, len(rows))
	for _, r := range rows {
		out = append(out, g.missionFromRow(r))
	}
	return out, nil
}

func (g *Gorm) SetMissionStatus(id string, st model.MissionStatus) error {
	res := g.db.Model(&missionRow{}).Where("id = ?", id).Update("status", string(st))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (g *Gorm) SetResolveAt(id string, t *time.Time) error {
	res := g.db.Model(&missionRow{}).Where("id = ?", id).Update("resolve_at", t)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (g *Gorm) AssignedUnits(missionID string) ([]string, error) {
	var rows []assignmentRow
	if err := g.db.Order("unit_id").Find(&rows, "mission_id = ?", missionID).Error; err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.UnitID)
	}
	return out, nil
}

func (g *Gorm) Assign(missionID string, unitIDs []string) error {
	return g.db.Transaction(func(tx *gorm.DB) error {
		for _, id := range unitIDs {
			row := assignmentRow{MissionID: missionID, UnitID: id}
			if err := tx.Where(&row).FirstOrCreate(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (g *Gorm) Unassign(missionID string, unitID string) error {
	return g.db.Delete(&assignmentRow{}, "mission_id = ? AND unit_id = ?", missionID, unitID).Error
}

func (g *Gorm) ClearAssignments(missionID string) error {
	return g.db.Delete(&assignmentRow{}, "mission_id = ?", missionID).Error
}

func (g *Gorm) AdjustBalance(delta int64) (int64, error) {
	var balance int64
	err := g.db.Transaction(func(tx *gorm.DB) error {
		var row walletRow
		if err := tx.Where(walletRow{ID: 1}).FirstOrCreate(&row).Error; err != nil {
			return err
		}
		row.Balance += delta
		balance = row.Balance
		return tx.Save(&row).Error
	})
	return balance, err
}

func (g *Gorm) GetBalance() (int64, error) {
	var row walletRow
	if err := g.db.First(&row, "id = 1").Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return row.Balance, nil
}

// TryReserve counts reservations active at now and inserts inside one
// transaction so two transports cannot claim the last slot.
func (g *Gorm) TryReserve(r model.Reservation, capacity int, now time.Time) (bool, error) {
	reserved := false
	err := g.db.Transaction(func(tx *gorm.DB) error {
		var active int64
		err := tx.Model(&reservationRow{}).
			Where("station_id = ? AND kind = ? AND expires_at > ?", r.StationID, string(r.Kind), now).
			Count(&active).Error
		if err != nil {
			return err
		}
		if active >= int64(capacity) {
			return nil
		}
		reserved = true
		return tx.Create(&reservationRow{
			ID:        r.ID,
			StationID: r.StationID,
			Kind:      string(r.Kind),
			UnitID:    r.UnitID,
			ExpiresAt: r.ExpiresAt,
		}).Error
	})
	return reserved, err
}

func (g *Gorm) EarliestExpiry(stationID string, kind model.TransportKind, now time.Time) (time.Time, bool, error) {
	var row reservationRow
	err := g.db.Where("station_id = ? AND kind = ? AND expires_at > ?", stationID, string(kind), now).
		Order("expires_at").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return row.ExpiresAt, true, nil
}

func (g *Gorm) Reserve(r model.Reservation) error {
	return g.db.Create(&reservationRow{
		ID:        r.ID,
		StationID: r.StationID,
		Kind:      string(r.Kind),
		UnitID:    r.UnitID,
		ExpiresAt: r.ExpiresAt,
	}).Error
}

// PruneReservations deletes reservations that expired before the cutoff.
func (g *Gorm) PruneReservations(before time.Time) (int64, error) {
	res := g.db.Delete(&reservationRow{}, "expires_at <= ?", before)
	return res.RowsAffected, res.Error
}
