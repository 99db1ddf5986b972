package schema

import (
	"fmt"
	"math"

	"bagetl/internal/ddl"
)

// Table is a backend-neutral table description. Key names the primary key
// column; it is omitted when empty.
type Table struct {
	Name    string
	Key     string
	Columns []Column
	Unique  [][]string
}

// Def renders t for a backend using mapType for the logical types.
func (t Table) Def(mapType ddl.TypeMapper) ddl.TableDef {
	def := ddl.TableDef{FQN: t.Name, Unique: t.Unique}
	for _, c := range t.Columns {
		def.Columns = append(def.Columns, ddl.ColumnDef{
			Name:       c.Name,
			SQLType:    mapType(string(c.Type)),
			Nullable:   c.Nullable,
			PrimaryKey: c.Name == t.Key,
			Default:    c.Default,
		})
	}
	return def
}

// ColumnNames returns the column names in declaration order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Sensor is a row of the static sensors table.
type Sensor struct {
	ID   int64
	Name string
}

// Sensors is the fixed sensor inventory of the mapping van.
var Sensors = []Sensor{
	{0, "Novatel_gps"},
	{1, "Novatel_imu"},
	{2, "Sick_laser"},
	{3, "Camera_frontLeft"},
	{4, "Camera_frontCenter"},
	{5, "Camera_frontRight"},
	{6, "US_encoder_left"},
	{7, "US_encoder_right"},
	{8, "Garmin_gps"},
	{9, "Hemisphere_gps"},
	{10, "Adis16407_imu"},
	{11, "Camera_rearLeft"},
	{12, "Camera_rearCenter"},
	{13, "Camera_rearRight"},
	{14, "SteerAngle_left"},
	{15, "SteerAngle_right"},
	{16, "Encoder_New"},
	{17, "Trigger"},
}

// BaseStation is a surveyed GNSS reference receiver. Coordinates are in
// degrees and meters; the std fields are meters.
type BaseStation struct {
	ID                        int64
	Name                      string
	Latitude, Longitude       float64
	Altitude                  float64
	LatitudeStd, LongitudeStd float64
	AltitudeStd               float64
}

func dms(deg, minutes, seconds float64) float64 {
	return math.Copysign(math.Abs(deg)+minutes/60+seconds/3600, deg)
}

// BaseStations holds the known reference receivers.
var BaseStations = []BaseStation{
	{
		ID: 1, Name: "Test Track",
		Latitude: dms(40, 51, 44.32334), Longitude: dms(-77, 50, 10.57246), Altitude: 333.817,
		LatitudeStd: 0.004, LongitudeStd: 0.002, AltitudeStd: 0.006,
	},
	{
		ID: 2, Name: "LTI, Larson Transportation Institute",
		Latitude: dms(40, 48, 24.81098), Longitude: dms(-77, 50, 59.26859), Altitude: 337.6654968261719,
		LatitudeStd: 0.004, LongitudeStd: 0.002, AltitudeStd: 0.006,
	},
}

// BaseStationByName looks a base station up by its exact name or by the
// short alias used in trip profiles ("LTI").
func BaseStationByName(name string) (BaseStation, bool) {
	for _, b := range BaseStations {
		if b.Name == name {
			return b, true
		}
	}
	if name == "LTI" {
		return BaseStations[1], true
	}
	return BaseStation{}, false
}

// Vehicle is the recording platform.
type Vehicle struct {
	ID   int64
	Name string
}

var DefaultVehicle = Vehicle{ID: 1, Name: "mapping van"}

// TripProfile is a named recording campaign. The trip row is keyed on the
// profile name plus the calendar date of the session.
type TripProfile struct {
	ID          int
	Name        string
	Description string
	Passengers  string
	Driver      string
	Notes       string
	BaseStation string
}

var TripProfiles = []TripProfile{
	{ID: 1, Name: "Test Track MappingVan", Description: "Test Track MappingVan.",
		Driver: "LimingGao", Notes: "without traffic light, at night", BaseStation: "LTI"},
	{ID: 2, Name: "Wahba Loop MappingVan", Description: "Wahba Loop MappingVan",
		Passengers: "LimingGao", Driver: "Dr. Brennan",
		Notes: "with traffic light, highway, four loops, DGPS inactive at some location", BaseStation: "LTI"},
	{ID: 3, Name: "Test Track Decision Points with Lane Change MappingVan",
		Description: "Test Track, Decision Points with Lane Change, MappingVan",
		Passengers:  "Liming Gao", Driver: "Guangwei Zhou",
		Notes: "Mapping at test track vehicle durability course area with lane change", BaseStation: "LTI"},
	{ID: 4, Name: "Test Track Decision Points MappingVan", Description: "Test Track, Decision Points, MappingVan",
		Passengers: "Liming Gao", Driver: "Guangwei Zhou",
		Notes: "Mapping at test track area with branch driving path at each road intersection", BaseStation: "Test Track"},
	{ID: 5, Name: "State College to City A MappingVan", Description: "Map from State College to CityA",
		Passengers: "Liming Gao", Driver: "Wushuang Bai",
		Notes: "Mapping from State College to CityA through I-99. DGPS was active.", BaseStation: "LTI"},
	{ID: 6, Name: "CityA to State College MappingVan", Description: "Map from CityA to State College",
		Passengers: "Liming Gao", Driver: "Wushuang Bai",
		Notes: "Mapping from CityA to State College through I-99. DGPS was active.", BaseStation: "LTI"},
	{ID: 7, Name: "State College to Altoona MappingVan",
		Description: "Map I99 from State College(exit 73) to Altoona (exit 33)",
		Passengers:  "Liming Gao", Driver: "Wushuang Bai", BaseStation: "LTI"},
	{ID: 8, Name: "Altoona to State College MappingVan",
		Description: "Map I99 from Altoona (exit 33) to State College(exit 73)",
		Passengers:  "Liming Gao", Driver: "Wushuang Bai", BaseStation: "LTI"},
	{ID: 9, Name: "Static GPS (Construction cone)",
		Description: "Static GPS (Construction cone) near mapping van garage",
		Driver:      "Liming Gao", BaseStation: "LTI"},
	{ID: 10, Name: "Altoona to State College MappingVan with image",
		Description: "Map data with camera I99 from Altoona (exit 33) to State College(exit 73)",
		Driver:      "Liming Gao", Notes: "this is used for image server test.", BaseStation: "LTI"},
	{ID: 11, Name: "Test Around LTI Garage", Description: "Test trigger, encoder, hemisphere and adisimu",
		Passengers: "Wushuang Bai", Driver: "Dr. Brennan",
		Notes: "This is to validate sensors working after rebuilding the van", BaseStation: "LTI"},
}

// TripProfileByID returns the profile numbered id (1-based, as listed to the
// operator).
func TripProfileByID(id int) (TripProfile, error) {
	for _, p := range TripProfiles {
		if p.ID == id {
			return p, nil
		}
	}
	return TripProfile{}, fmt.Errorf("schema: unknown trip profile %d", id)
}

// Core table names.
const (
	TableVehicle             = "vehicle"
	TableSensors             = "sensors"
	TableBaseStations        = "base_stations"
	TableBaseStationMessages = "base_station_messages"
	TableTrips               = "trips"
	TableBagFiles            = "bag_files"
	TableCameraParameters    = "camera_parameters"
)

// ReferenceTables returns the tables every sink needs before the first
// session is loaded, parents first.
func ReferenceTables() []Table {
	return []Table{
		{
			Name: TableVehicle, Key: "id",
			Columns: []Column{{Name: "id", Type: TypeInt64}, {Name: "name", Type: TypeKey}},
			Unique:  [][]string{{"name"}},
		},
		{
			Name: TableSensors, Key: "id",
			Columns: []Column{{Name: "id", Type: TypeInt64}, {Name: "product_name", Type: TypeKey}},
		},
		{
			Name: TableBaseStations, Key: "id",
			Columns: []Column{
				{Name: "id", Type: TypeInt64},
				{Name: "name", Type: TypeKey},
				{Name: "latitude", Type: TypeFloat64},
				{Name: "longitude", Type: TypeFloat64},
				{Name: "altitude", Type: TypeFloat64},
				{Name: "latitude_std", Type: TypeFloat64},
				{Name: "longitude_std", Type: TypeFloat64},
				{Name: "altitude_std", Type: TypeFloat64},
			},
			Unique: [][]string{{"name"}},
		},
		{
			Name: TableBaseStationMessages, Key: "id",
			Columns: []Column{{Name: "id", Type: TypeIdentity}, {Name: "base_station_name", Type: TypeKey}},
			Unique:  [][]string{{"base_station_name"}},
		},
		{
			Name: TableTrips, Key: "id",
			Columns: []Column{
				{Name: "id", Type: TypeIdentity},
				{Name: "name", Type: TypeKey},
				{Name: "date", Type: TypeKey},
				{Name: "base_stations_id", Type: TypeInt64, Nullable: true},
				{Name: "description", Type: TypeText, Nullable: true},
				{Name: "passengers", Type: TypeText, Nullable: true},
				{Name: "driver", Type: TypeText, Nullable: true},
				{Name: "notes", Type: TypeText, Nullable: true},
				{Name: "date_added", Type: TypeText, Nullable: true},
			},
			Unique: [][]string{{"name", "date"}},
		},
		{
			Name: TableBagFiles, Key: "id",
			Columns: []Column{
				{Name: "id", Type: TypeIdentity},
				{Name: "name", Type: TypeKey},
				{Name: "vehicle_id", Type: TypeInt64},
				{Name: "trips_id", Type: TypeInt64, Nullable: true},
				{Name: "file_path", Type: TypeText},
				{Name: "datetime", Type: TypeText, Nullable: true},
				{Name: "datetime_end", Type: TypeText, Nullable: true},
				{Name: "parsed", Type: TypeBool},
			},
			Unique: [][]string{{"name"}},
		},
	}
}

// TableSpec returns the destination table of r: a generated id, the declared
// columns and any extra columns, with r.Unique as the row identity.
func (r Rule) TableSpec() Table {
	types := r.Types()
	t := Table{Name: r.Table, Key: "id"}
	t.Columns = append(t.Columns, Column{Name: "id", Type: TypeIdentity})
	for _, c := range r.Columns {
		nullable := true
		switch c {
		case r.SessionColumn, r.SecondsColumn, r.NanosColumn, r.IndexColumn:
			nullable = false
		}
		t.Columns = append(t.Columns, Column{Name: c, Type: types[c], Nullable: nullable})
	}
	t.Columns = append(t.Columns, r.Extra...)
	if len(r.Unique) > 0 {
		t.Unique = [][]string{r.Unique}
	}
	return t
}

// TableDef renders the destination table of r for a backend.
func (r Rule) TableDef(mapType ddl.TypeMapper) ddl.TableDef {
	return r.TableSpec().Def(mapType)
}

// TableSpec returns the parameter table of p, unique on the sensor and the full
// parameter tuple.
func (p ParamRule) TableSpec() Table {
	t := Table{Name: p.Table, Key: "id"}
	t.Columns = []Column{
		{Name: "id", Type: TypeIdentity},
		{Name: "bag_files_id", Type: TypeInt64},
		{Name: "sensors_id", Type: TypeInt64},
	}
	key := []string{"sensors_id"}
	for _, f := range p.Fields {
		t.Columns = append(t.Columns, Column{Name: f.Column, Type: f.Type, Nullable: true})
		key = append(key, f.Column)
	}
	t.Unique = [][]string{key}
	return t
}

// ConflictColumns returns the columns that identify a parameter row.
func (p ParamRule) ConflictColumns() []string {
	out := []string{"sensors_id"}
	for _, f := range p.Fields {
		out = append(out, f.Column)
	}
	return out
}
