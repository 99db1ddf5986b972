package schema

// Sensor ids of the static sensors table referenced by the legacy rules.
const (
	SensorCameraFrontLeft   int64 = 3
	SensorCameraFrontCenter int64 = 4
	SensorCameraFrontRight  int64 = 5
	SensorGarminGPS         int64 = 8
	SensorAdisIMU           int64 = 10
	SensorSteerAngleLeft    int64 = 14
)

var legacyHead = []string{"sensors_id", sessionColumn, "timestamp", "seconds", "nanoseconds", "time"}

// legacy builds a rule in the older table layout: sensor id, session, a
// datetime string and the stamp split three ways. Tables shared by several
// sensors are told apart by sensors_id in the row identity.
func legacy(topic, table string, sensorID int64, fields []Field, columns ...string) Rule {
	stamp := []Field{
		{Source: FieldSecs, Column: "seconds", Type: TypeInt64},
		{Source: FieldNsecs, Column: "nanoseconds", Type: TypeInt64},
	}
	return Rule{
		Topic:         topic,
		Table:         table,
		Generation:    GenerationLegacy,
		SessionColumn: sessionColumn,
		SensorID:      sensorID,
		Fields:        append(stamp, fields...),
		Derived: []Derived{
			{Column: "sensors_id", Kind: DeriveConstant, Value: sensorID, Type: TypeInt64},
			{Column: "timestamp", Kind: DeriveDatetime, Inputs: []string{FieldSecs}, Type: TypeText},
			{Column: "time", Kind: DeriveTime, Inputs: []string{FieldSecs, FieldNsecs}, Scale: 1e-9, Type: TypeFloat64},
			messageIndex(),
		},
		Columns:       append(cols(legacyHead, columns...), indexColumn),
		SecondsColumn: "seconds",
		NanosColumn:   "nanoseconds",
		IndexColumn:   indexColumn,
		Unique:        []string{"sensors_id", sessionColumn, indexColumn},
	}
}

func garminGPSRule() Rule {
	return legacy("/fix", "garmin_gps", SensorGarminGPS,
		[]Field{
			{Source: "status.status", Column: "status", Type: TypeInt32},
			{Source: "status.service", Column: "service", Type: TypeInt32},
			{Source: "latitude", Column: "latitude", Type: TypeFloat64},
			{Source: "longitude", Column: "longitude", Type: TypeFloat64},
			{Source: "altitude", Column: "altitude", Type: TypeFloat64},
		},
		"status", "service", "latitude", "longitude", "altitude",
	)
}

func garminVelocityRule() Rule {
	return legacy("/vel", "garmin_velocity", SensorGarminGPS,
		[]Field{
			{Source: "twist.linear.x", Column: "east_velocity", Type: TypeFloat64},
			{Source: "twist.linear.y", Column: "north_velocity", Type: TypeFloat64},
		},
		"east_velocity", "north_velocity",
	)
}

// adisIMURule reads the extended IMU message. Temperature, pressure and the
// magnetometer are absent from plain sensor_msgs/Imu recordings and load as
// NULL there.
func adisIMURule() Rule {
	return legacy("/imu/data", "adis_imu", SensorAdisIMU,
		[]Field{
			{Source: "linear_acceleration.x", Column: "x_acceleration", Type: TypeFloat64},
			{Source: "linear_acceleration.y", Column: "y_acceleration", Type: TypeFloat64},
			{Source: "linear_acceleration.z", Column: "z_acceleration", Type: TypeFloat64},
			{Source: "angular_velocity.x", Column: "x_angular_velocity", Type: TypeFloat64},
			{Source: "angular_velocity.y", Column: "y_angular_velocity", Type: TypeFloat64},
			{Source: "angular_velocity.z", Column: "z_angular_velocity", Type: TypeFloat64},
			{Source: "temperature", Column: "temperature", Type: TypeFloat64},
			{Source: "pressure", Column: "pressure", Type: TypeFloat64},
			{Source: "magnetic_field.x", Column: "magnetic_x", Type: TypeFloat64},
			{Source: "magnetic_field.y", Column: "magnetic_y", Type: TypeFloat64},
			{Source: "magnetic_field.z", Column: "magnetic_z", Type: TypeFloat64},
		},
		"x_acceleration", "y_acceleration", "z_acceleration",
		"x_angular_velocity", "y_angular_velocity", "z_angular_velocity",
		"temperature", "pressure", "magnetic_x", "magnetic_y", "magnetic_z",
	)
}

func steeringAngleRule() Rule {
	return legacy("/steering_angle", "steering_angle", SensorSteerAngleLeft,
		[]Field{
			{Source: "left_counts", Column: "left_counts", Type: TypeInt32},
			{Source: "right_counts", Column: "right_counts", Type: TypeInt32},
			{Source: "left_counts_filtered", Column: "left_counts_filtered", Type: TypeFloat64},
			{Source: "right_counts_filtered", Column: "right_counts_filtered", Type: TypeFloat64},
			{Source: "left_angle", Column: "left_angle", Type: TypeFloat64},
			{Source: "right_angle", Column: "right_angle", Type: TypeFloat64},
			{Source: "angle", Column: "angle", Type: TypeFloat64},
		},
		"left_counts", "right_counts",
		"left_counts_filtered", "right_counts_filtered",
		"left_angle", "right_angle", "angle",
	)
}

// cameras lists the compressed image streams and their sensor ids.
var cameras = []struct {
	name string
	id   int64
}{
	{"front_left", SensorCameraFrontLeft},
	{"front_center", SensorCameraFrontCenter},
	{"front_right", SensorCameraFrontRight},
}

// cameraRule stores each frame as a .jpg blob named by its hash. The
// triggered stamp columns are filled later by the correction pass.
func cameraRule(name string, sensorID int64) Rule {
	r := legacy("/"+name+"_camera/image_rect_color/compressed", "camera", sensorID,
		[]Field{{Source: "data", Column: "data", Type: TypeText}},
		"file_name",
	)
	r.Blob = &Blob{Source: "data", Ext: ".jpg", HashColumn: "file_name"}
	r.Extra = []Column{
		{Name: "seconds_triggered", Type: TypeInt64, Nullable: true},
		{Name: "nanoseconds_triggered", Type: TypeInt64, Nullable: true},
	}
	return r
}

func cameraParamRule(name string, sensorID int64) ParamRule {
	return ParamRule{
		Topic:    "/" + name + "_camera/camera_info",
		Table:    "camera_parameters",
		SensorID: sensorID,
		Fields: []Field{
			{Source: "K.0", Column: "focal_x", Type: TypeFloat64},
			{Source: "K.4", Column: "focal_y", Type: TypeFloat64},
			{Source: "K.2", Column: "center_x", Type: TypeFloat64},
			{Source: "K.5", Column: "center_y", Type: TypeFloat64},
			{Source: "K.1", Column: "skew", Type: TypeFloat64},
			{Source: "width", Column: "image_width", Type: TypeInt32},
			{Source: "height", Column: "image_height", Type: TypeInt32},
			{Source: "D.0", Column: "distortion_k1", Type: TypeFloat64},
			{Source: "D.1", Column: "distortion_k2", Type: TypeFloat64},
			{Source: "D.2", Column: "distortion_p1", Type: TypeFloat64},
			{Source: "D.3", Column: "distortion_p2", Type: TypeFloat64},
			{Source: "D.4", Column: "distortion_k3", Type: TypeFloat64},
		},
	}
}

func legacyRules() []Rule {
	rules := []Rule{garminGPSRule(), garminVelocityRule(), adisIMURule(), steeringAngleRule()}
	for _, c := range cameras {
		rules = append(rules, cameraRule(c.name, c.id))
	}
	return rules
}

func paramRules() []ParamRule {
	out := make([]ParamRule, 0, len(cameras))
	for _, c := range cameras {
		out = append(out, cameraParamRule(c.name, c.id))
	}
	return out
}
