package schema

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefault_RegistersEveryRule(t *testing.T) {
	t.Parallel()

	reg := Default()
	want := len(currentRules()) + len(legacyRules())
	if got := len(reg.Topics()); got != want {
		t.Fatalf("len(Topics()) = %d; want %d", got, want)
	}
	for _, topic := range []string{
		"/parseEncoder",
		"/parseTrigger",
		"/GPS_SparkFun_Front_GGA",
		"/GPS_SparkFun_RearLeft_GST",
		"/GPS_SparkFun_RearRight_VTG",
		"/sick_lms_5xx/scan",
		"/velodyne_packets",
		"/ouster_packets",
		"/fix",
		"/vel",
		"/imu/data",
		"/steering_angle",
		"/front_center_camera/image_rect_color/compressed",
	} {
		if _, ok := reg.Lookup(topic); !ok {
			t.Errorf("Lookup(%q) missed", topic)
		}
	}
	if _, ok := reg.LookupParam("/front_left_camera/camera_info"); !ok {
		t.Errorf("LookupParam(camera_info) missed")
	}
}

func TestLookup_UnknownTopic(t *testing.T) {
	t.Parallel()

	rule, ok := Default().Lookup("/diagnostics")
	if ok {
		t.Fatalf("Lookup(/diagnostics) ok = true; want false")
	}
	if rule.Table != "" {
		t.Fatalf("Lookup(/diagnostics) rule.Table = %q; want empty", rule.Table)
	}
}

func TestBuiltinRules_Shape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		topic   string
		table   string
		columns int
	}{
		{"/parseEncoder", "encoder", 19},
		{"/parseTrigger", "trigger", 21},
		{"/GPS_SparkFun_RearLeft_GGA", "gps_spark_fun_rear_left_gga", 19},
		{"/GPS_SparkFun_Front_GST", "gps_spark_fun_front_gst", 15},
		{"/GPS_SparkFun_RearRight_VTG", "gps_spark_fun_rear_right_vtg", 10},
		{"/sick_lms_5xx/scan", "sick_lms_5xx", 15},
		{"/velodyne_packets", "velodyne_lidar", 10},
		{"/fix", "garmin_gps", 12},
		{"/vel", "garmin_velocity", 9},
		{"/imu/data", "adis_imu", 18},
		{"/steering_angle", "steering_angle", 14},
		{"/front_right_camera/image_rect_color/compressed", "camera", 8},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.table, func(t *testing.T) {
			t.Parallel()

			rule, ok := Default().Lookup(tt.topic)
			if !ok {
				t.Fatalf("Lookup(%q) missed", tt.topic)
			}
			if rule.Table != tt.table {
				t.Fatalf("Table = %q; want %q", rule.Table, tt.table)
			}
			if got := len(rule.Columns); got != tt.columns {
				t.Fatalf("len(Columns) = %d; want %d", got, tt.columns)
			}
			if got := rule.NormalizedWidth(); got != tt.columns {
				t.Fatalf("NormalizedWidth() = %d; want %d", got, tt.columns)
			}
		})
	}
}

func TestGGARule_ForeignKeyAndGPSTime(t *testing.T) {
	t.Parallel()

	rule, _ := Default().Lookup("/GPS_SparkFun_Front_GGA")
	if rule.ForeignKey == nil {
		t.Fatalf("GGA rule has no foreign key")
	}
	if got, want := rule.ForeignKey.RefTable, TableBaseStationMessages; got != want {
		t.Fatalf("RefTable = %q; want %q", got, want)
	}
	if _, ok := rule.RenameMap()["BaseStationID"]; ok {
		t.Fatalf("RenameMap() keeps the natural key column")
	}
	var gps *Derived
	for i := range rule.Derived {
		if rule.Derived[i].Column == "gpstime" {
			gps = &rule.Derived[i]
		}
	}
	if gps == nil || gps.Scale != 1e-9 {
		t.Fatalf("gpstime derived = %+v; want scale 1e-9", gps)
	}
}

func TestRegister_RejectsInconsistentRules(t *testing.T) {
	t.Parallel()

	base := func() Rule {
		return Rule{
			Topic:         "/x",
			Table:         "x",
			SessionColumn: "bag_files_id",
			Fields: []Field{
				{Source: "secs", Column: "s", Type: TypeInt64},
				{Source: "nsecs", Column: "ns", Type: TypeInt64},
			},
			Columns: []string{"bag_files_id", "s", "ns"},
		}
	}

	tests := []struct {
		name        string
		mutate      func(r *Rule)
		errContains string
	}{
		{"ok", func(r *Rule) {}, ""},
		{"missing table", func(r *Rule) { r.Table = "" }, "needs topic and table"},
		{"width mismatch", func(r *Rule) { r.Columns = r.Columns[:2] }, "produces 3 columns"},
		{"duplicate source", func(r *Rule) {
			r.Fields[1].Source = "secs"
		}, "duplicate source field"},
		{"unknown type", func(r *Rule) { r.Fields[0].Type = "decimal" }, "unknown type"},
		{"derived input missing", func(r *Rule) {
			r.Derived = []Derived{{Column: "t", Kind: DeriveTime, Inputs: []string{"secs", "usecs"}, Scale: 1e-6, Type: TypeFloat64}}
			r.Columns = append(r.Columns, "t")
		}, `reads "usecs"`},
		{"column without producer", func(r *Rule) { r.Columns[2] = "nanos" }, "has no producer"},
		{"unique not a column", func(r *Rule) { r.Unique = []string{"id"} }, "unique column"},
		{"index not a column", func(r *Rule) { r.IndexColumn = "message_index" }, "index column"},
		{"index derived", func(r *Rule) {
			r.Derived = []Derived{{Column: "message_index", Kind: DeriveIndex, Type: TypeInt64}}
			r.Columns = append(r.Columns, "message_index")
			r.IndexColumn = "message_index"
			r.Unique = []string{"bag_files_id", "message_index"}
		}, ""},
		{"unknown derived kind", func(r *Rule) {
			r.Derived = []Derived{{Column: "t", Kind: "sum", Type: TypeFloat64}}
			r.Columns = append(r.Columns, "t")
		}, "unknown kind"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := base()
			tt.mutate(&r)
			err := NewRegistry().Register(r)
			if tt.errContains == "" {
				if err != nil {
					t.Fatalf("Register() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Fatalf("Register() err = %v; want substring %q", err, tt.errContains)
			}
		})
	}
}

func TestBuiltinRules_RowIdentityIsArrivalIndex(t *testing.T) {
	t.Parallel()

	for _, topic := range Default().Topics() {
		rule, _ := Default().Lookup(topic)
		if rule.IndexColumn != "message_index" {
			t.Errorf("%s: IndexColumn = %q", topic, rule.IndexColumn)
			continue
		}
		for _, c := range rule.Unique {
			if c == rule.SecondsColumn || c == rule.NanosColumn {
				t.Errorf("%s: unique key %v holds the header stamp", topic, rule.Unique)
			}
		}
		if last := rule.Unique[len(rule.Unique)-1]; last != rule.IndexColumn {
			t.Errorf("%s: unique key %v does not end with the index", topic, rule.Unique)
		}
		for _, c := range rule.TableSpec().Columns {
			if c.Name == rule.IndexColumn && c.Nullable {
				t.Errorf("%s: %s nullable", topic, c.Name)
			}
		}
	}
}

func TestRegister_DuplicateTopic(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	rule, _ := Default().Lookup("/parseTrigger")
	if err := reg.Register(rule); err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	if err := reg.Register(rule); err == nil {
		t.Fatalf("second Register() err = nil; want duplicate error")
	}
}

func TestTables_CameraSharedOnce(t *testing.T) {
	t.Parallel()

	var camera []Table
	for _, tbl := range Default().Tables() {
		if tbl.Name == "camera" {
			camera = append(camera, tbl)
		}
	}
	if len(camera) != 1 {
		t.Fatalf("camera tables = %d; want 1", len(camera))
	}
	names := camera[0].ColumnNames()
	want := []string{
		"id", "sensors_id", "bag_files_id", "timestamp", "seconds", "nanoseconds", "time",
		"file_name", "message_index", "seconds_triggered", "nanoseconds_triggered",
	}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("camera columns mismatch (-want +got):\n%s", diff)
	}
	want = []string{"sensors_id", "bag_files_id", "message_index"}
	if got := camera[0].Unique; len(got) != 1 || !cmp.Equal(want, got[0]) {
		t.Fatalf("camera unique = %v; want %v", got, want)
	}
}

func TestRuleTableDef_NullabilityAndTypes(t *testing.T) {
	t.Parallel()

	rule, _ := Default().Lookup("/parseTrigger")
	def := rule.TableDef(func(kind string) string { return strings.ToUpper(kind) })

	byName := map[string]struct {
		typ      string
		nullable bool
		pk       bool
	}{}
	for _, c := range def.Columns {
		byName[c.Name] = struct {
			typ      string
			nullable bool
			pk       bool
		}{c.SQLType, c.Nullable, c.PrimaryKey}
	}
	if c := byName["id"]; c.typ != "IDENTITY" || !c.pk {
		t.Fatalf("id = %+v; want IDENTITY primary key", c)
	}
	if c := byName["bag_files_id"]; c.nullable {
		t.Fatalf("bag_files_id nullable; want NOT NULL")
	}
	if c := byName["trigger_mode"]; c.typ != "TEXT" || !c.nullable {
		t.Fatalf("trigger_mode = %+v; want nullable TEXT", c)
	}
	if c := byName["ros_record_time"]; c.typ != "FLOAT32" {
		t.Fatalf("ros_record_time type = %q; want FLOAT32", c.typ)
	}
}

func TestBaseStations(t *testing.T) {
	t.Parallel()

	lti, ok := BaseStationByName("LTI")
	if !ok || lti.ID != 2 {
		t.Fatalf("BaseStationByName(LTI) = %+v, %v; want id 2", lti, ok)
	}
	track, ok := BaseStationByName("Test Track")
	if !ok || track.ID != 1 {
		t.Fatalf("BaseStationByName(Test Track) = %+v, %v; want id 1", track, ok)
	}
	if track.Longitude >= -77 || track.Longitude <= -78 {
		t.Fatalf("Test Track longitude = %v; want within (-78, -77)", track.Longitude)
	}
	if _, ok := BaseStationByName("Nowhere"); ok {
		t.Fatalf("BaseStationByName(Nowhere) ok = true")
	}
}

func TestTripProfileByID(t *testing.T) {
	t.Parallel()

	p, err := TripProfileByID(4)
	if err != nil {
		t.Fatalf("TripProfileByID(4) error = %v", err)
	}
	if p.BaseStation != "Test Track" {
		t.Fatalf("profile 4 base station = %q; want Test Track", p.BaseStation)
	}
	if _, err := TripProfileByID(12); err == nil {
		t.Fatalf("TripProfileByID(12) err = nil; want error")
	}
	if len(Sensors) != 18 {
		t.Fatalf("len(Sensors) = %d; want 18", len(Sensors))
	}
}
