package schema

// Source field names the frame builder fills from the message envelope
// instead of the message body.
const (
	FieldRecordTime = "rosbagTimestamp"
	FieldSecs       = "secs"
	FieldNsecs      = "nsecs"
)

const (
	GenerationCurrent = "current"
	GenerationLegacy  = "legacy"

	sessionColumn = "bag_files_id"
	indexColumn   = "message_index"
)

// rosStamp is the envelope triple every current-generation table stores.
func rosStamp() []Field {
	return []Field{
		{Source: FieldRecordTime, Column: "ros_record_time", Type: TypeFloat32},
		{Source: FieldSecs, Column: "ros_seconds", Type: TypeInt64},
		{Source: FieldNsecs, Column: "ros_nanoseconds", Type: TypeInt64},
	}
}

func rosPublishTime() Derived {
	return Derived{
		Column: "ros_publish_time",
		Kind:   DeriveTime,
		Inputs: []string{FieldSecs, FieldNsecs},
		Scale:  1e-9,
		Type:   TypeFloat32,
	}
}

func messageIndex() Derived {
	return Derived{Column: indexColumn, Kind: DeriveIndex, Type: TypeInt64}
}

// gpsTime combines the receiver's whole seconds and its sub-second field.
// The field is scaled by 1e-9, the value existing databases hold.
func gpsTime() Derived {
	return Derived{
		Column: "gpstime",
		Kind:   DeriveTime,
		Inputs: []string{"GPSSecs", "GPSMicroSecs"},
		Scale:  1e-9,
		Type:   TypeFloat32,
	}
}

func current(topic, table string, fields []Field, derived []Derived, columns ...string) Rule {
	return Rule{
		Topic:         topic,
		Table:         table,
		Generation:    GenerationCurrent,
		SessionColumn: sessionColumn,
		Fields:        append(rosStamp(), fields...),
		Derived:       append([]Derived{rosPublishTime(), messageIndex()}, derived...),
		Columns:       columns,
		SecondsColumn: "ros_seconds",
		NanosColumn:   "ros_nanoseconds",
		IndexColumn:   indexColumn,
		Unique:        []string{sessionColumn, indexColumn},
	}
}

var rosTail = []string{"ros_seconds", "ros_nanoseconds", "ros_publish_time", "ros_record_time", indexColumn}

func cols(head []string, tail ...string) []string {
	out := make([]string, 0, len(head)+len(tail))
	out = append(out, head...)
	return append(out, tail...)
}

func encoderRule() Rule {
	return current("/parseEncoder", "encoder",
		[]Field{
			{Source: "mode", Column: "encoder_mode", Type: TypeText},
			{Source: "C1", Column: "c1", Type: TypeInt64},
			{Source: "C2", Column: "c2", Type: TypeInt64},
			{Source: "C3", Column: "c3", Type: TypeInt64},
			{Source: "C4", Column: "c4", Type: TypeInt64},
			{Source: "P1", Column: "p1", Type: TypeInt64},
			{Source: "E1", Column: "e1", Type: TypeInt64},
			{Source: "err_wrong_element_length", Column: "err_wrong_element_length", Type: TypeInt32},
			{Source: "err_bad_element_structure", Column: "err_bad_element_structure", Type: TypeInt32},
			{Source: "err_failed_time", Column: "err_failed_time", Type: TypeInt32},
			{Source: "err_bad_uppercase_character", Column: "err_bad_uppercase_character", Type: TypeInt32},
			{Source: "err_bad_lowercase_character", Column: "err_bad_lowercase_character", Type: TypeInt32},
			{Source: "err_bad_character", Column: "err_bad_character", Type: TypeInt32},
		},
		nil,
		cols([]string{
			sessionColumn, "encoder_mode",
			"c1", "c2", "c3", "c4", "p1", "e1",
			"err_wrong_element_length", "err_bad_element_structure",
			"err_failed_time", "err_bad_uppercase_character",
			"err_bad_lowercase_character", "err_bad_character",
		}, rosTail...)...,
	)
}

func triggerRule() Rule {
	return current("/parseTrigger", "trigger",
		[]Field{
			{Source: "mode", Column: "trigger_mode", Type: TypeText},
			{Source: "mode_counts", Column: "trigger_mode_counts", Type: TypeInt32},
			{Source: "adjone", Column: "adjone", Type: TypeInt32},
			{Source: "adjtwo", Column: "adjtwo", Type: TypeInt32},
			{Source: "adjthree", Column: "adjthree", Type: TypeInt32},
			{Source: "err_failed_mode_count", Column: "err_failed_mode_count", Type: TypeInt32},
			{Source: "err_failed_XI_format", Column: "err_failed_xi_format", Type: TypeInt32},
			{Source: "err_failed_checkInformation", Column: "err_failed_check_information", Type: TypeInt32},
			{Source: "err_trigger_unknown_error_occured", Column: "err_trigger_unknown_error_occured", Type: TypeInt32},
			{Source: "err_bad_uppercase_character", Column: "err_bad_uppercase_character", Type: TypeInt32},
			{Source: "err_bad_lowercase_character", Column: "err_bad_lowercase_character", Type: TypeInt32},
			{Source: "err_bad_three_adj_element", Column: "err_bad_three_adj_element", Type: TypeInt32},
			{Source: "err_bad_first_element", Column: "err_bad_first_element", Type: TypeInt32},
			{Source: "err_bad_character", Column: "err_bad_character", Type: TypeInt32},
			{Source: "err_wrong_element_length", Column: "err_wrong_element_length", Type: TypeInt32},
		},
		nil,
		cols([]string{
			sessionColumn, "trigger_mode", "trigger_mode_counts",
			"adjone", "adjtwo", "adjthree",
			"err_failed_mode_count", "err_failed_xi_format", "err_failed_check_information",
			"err_trigger_unknown_error_occured", "err_bad_uppercase_character",
			"err_bad_lowercase_character", "err_bad_three_adj_element",
			"err_bad_first_element", "err_bad_character", "err_wrong_element_length",
		}, rosTail...)...,
	)
}

// sparkFunAntennas maps the topic infix of each SparkFun receiver to its
// table infix.
var sparkFunAntennas = []struct{ topic, table string }{
	{"RearLeft", "rear_left"},
	{"RearRight", "rear_right"},
	{"Front", "front"},
}

func ggaRule(antenna, table string) Rule {
	r := current("/GPS_SparkFun_"+antenna+"_GGA", "gps_spark_fun_"+table+"_gga",
		[]Field{
			{Source: "GPSSecs", Column: "gpssecs", Type: TypeFloat32},
			{Source: "GPSMicroSecs", Column: "gpsmicrosecs", Type: TypeFloat32},
			{Source: "Latitude", Column: "latitude", Type: TypeFloat32},
			{Source: "Longitude", Column: "longitude", Type: TypeFloat32},
			{Source: "Altitude", Column: "altitude", Type: TypeFloat32},
			{Source: "GeoSep", Column: "geosep", Type: TypeFloat32},
			{Source: "NavMode", Column: "nav_mode", Type: TypeInt32},
			{Source: "NumOfSats", Column: "num_of_sats", Type: TypeInt32},
			{Source: "HDOP", Column: "hdop", Type: TypeFloat64},
			{Source: "AgeOfDiff", Column: "age_of_diff", Type: TypeFloat64},
			{Source: "LockStatus", Column: "lock_status", Type: TypeInt32},
			{Source: "BaseStationID", Column: "base_station_messages_id", Type: TypeInt64},
		},
		[]Derived{gpsTime()},
		cols([]string{
			sessionColumn, "base_station_messages_id",
			"gpssecs", "gpsmicrosecs", "gpstime",
			"latitude", "longitude", "altitude",
			"geosep", "nav_mode", "num_of_sats",
			"hdop", "age_of_diff", "lock_status",
		}, rosTail...)...,
	)
	r.ForeignKey = &ForeignKey{
		Source:    "BaseStationID",
		Column:    "base_station_messages_id",
		RefTable:  "base_station_messages",
		RefColumn: "base_station_name",
		Trim:      `"`,
	}
	return r
}

func gstRule(antenna, table string) Rule {
	return current("/GPS_SparkFun_"+antenna+"_GST", "gps_spark_fun_"+table+"_gst",
		[]Field{
			{Source: "GPSSecs", Column: "gpssecs", Type: TypeFloat32},
			{Source: "GPSMicroSecs", Column: "gpsmicrosecs", Type: TypeFloat32},
			{Source: "StdMajor", Column: "stdmajor", Type: TypeFloat64},
			{Source: "StdMinor", Column: "stdminor", Type: TypeFloat64},
			{Source: "StdOri", Column: "stdori", Type: TypeFloat64},
			{Source: "StdLat", Column: "stdlat", Type: TypeFloat64},
			{Source: "StdLon", Column: "stdlon", Type: TypeFloat64},
			{Source: "StdAlt", Column: "stdalt", Type: TypeFloat64},
		},
		[]Derived{gpsTime()},
		cols([]string{
			sessionColumn, "gpssecs", "gpsmicrosecs", "gpstime",
			"stdmajor", "stdminor", "stdori",
			"stdlat", "stdlon", "stdalt",
		}, rosTail...)...,
	)
}

func vtgRule(antenna, table string) Rule {
	return current("/GPS_SparkFun_"+antenna+"_VTG", "gps_spark_fun_"+table+"_vtg",
		[]Field{
			{Source: "TrueTrack", Column: "true_track", Type: TypeFloat32},
			{Source: "MagTrack", Column: "mag_track", Type: TypeFloat32},
			{Source: "SpdOverGrndKnots", Column: "spdovergrndknots", Type: TypeFloat32},
			{Source: "SpdOverGrndKmph", Column: "spdovergrndkmph", Type: TypeFloat32},
		},
		nil,
		cols([]string{
			sessionColumn, "true_track", "mag_track",
			"spdovergrndknots", "spdovergrndkmph",
		}, rosTail...)...,
	)
}

func sickRule() Rule {
	return current("/sick_lms_5xx/scan", "sick_lms_5xx",
		[]Field{
			{Source: "angle_min", Column: "angle_min", Type: TypeFloat32},
			{Source: "angle_max", Column: "angle_max", Type: TypeFloat32},
			{Source: "angle_increment", Column: "angle_increment", Type: TypeFloat32},
			{Source: "time_increment", Column: "time_increment", Type: TypeFloat32},
			{Source: "scan_time", Column: "scan_time", Type: TypeFloat32},
			{Source: "range_min", Column: "range_min", Type: TypeFloat32},
			{Source: "range_max", Column: "range_max", Type: TypeFloat32},
			{Source: "ranges", Column: "ranges", Type: TypeText},
			{Source: "intensities", Column: "intensities", Type: TypeText},
		},
		nil,
		cols([]string{
			sessionColumn, "scan_time", "time_increment",
			"angle_min", "angle_max", "angle_increment",
			"range_min", "range_max", "ranges", "intensities",
		}, rosTail...)...,
	)
}

// lidarRule stores raw packets in the blob store and keeps only their
// address and size in the table.
func lidarRule(topic, table string) Rule {
	prefix := table + "_"
	r := current(topic, table,
		[]Field{{Source: "packets", Column: "packets", Type: TypeText}},
		nil,
		cols([]string{
			sessionColumn,
			prefix + "hash_tag", prefix + "location",
			prefix + "file_size", prefix + "file_time",
		}, rosTail...)...,
	)
	r.Blob = &Blob{
		Source:         "packets",
		Ext:            ".bin",
		HashColumn:     prefix + "hash_tag",
		LocationColumn: prefix + "location",
		SizeColumn:     prefix + "file_size",
		TimeColumn:     prefix + "file_time",
	}
	return r
}

// currentRules returns the rules of the updated parsing scripts.
func currentRules() []Rule {
	rules := []Rule{encoderRule(), triggerRule(), sickRule()}
	for _, a := range sparkFunAntennas {
		rules = append(rules, ggaRule(a.topic, a.table), gstRule(a.topic, a.table), vtgRule(a.topic, a.table))
	}
	rules = append(rules,
		lidarRule("/velodyne_packets", "velodyne_lidar"),
		lidarRule("/ouster_packets", "ouster_lidar"),
	)
	return rules
}
