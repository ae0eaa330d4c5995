package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Control   ControlConfig   `yaml:"control"`
	Ranging   RangingConfig   `yaml:"ranging"`
	Steering  SteeringConfig  `yaml:"steering"`
	Motor     MotorConfig     `yaml:"motor"`
	Actuator  ActuatorConfig  `yaml:"actuator"`
	HTTP      HTTPConfig      `yaml:"http"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	WiFi      WiFiConfig      `yaml:"wifi"`
	Camera    CameraConfig    `yaml:"camera"`
	GPS       GPSConfig       `yaml:"gps"`
	Battery   BatteryConfig   `yaml:"battery"`
	Sim       SimConfig       `yaml:"sim"`
}

type SimConfig struct {
	// Enable swaps the GPIO sensor backend for a scripted scenario.
	Enable   bool   `yaml:"enable"`
	Scenario string `yaml:"scenario"`
}

type ControlConfig struct {
	// SensorInterval gates one sample+steer+speed pass.
	SensorInterval time.Duration `yaml:"sensor_interval"`
	// RudderInterval gates the angle-smoothing sub-step.
	RudderInterval time.Duration `yaml:"rudder_interval"`
	// BuzzerInterval is the on/off cadence while avoiding.
	BuzzerInterval time.Duration `yaml:"buzzer_interval"`
	// PollPeriod is the scheduler's internal wakeup period.
	PollPeriod time.Duration `yaml:"poll_period"`
}

type ChannelPins struct {
	Trigger int `yaml:"trigger"`
	Echo    int `yaml:"echo"`
}

type RangingConfig struct {
	Front ChannelPins `yaml:"front"`
	Left  ChannelPins `yaml:"left"`
	Right ChannelPins `yaml:"right"`

	// EchoTimeout bounds the echo wait; a timeout reads as "no obstacle".
	EchoTimeout time.Duration `yaml:"echo_timeout"`
	// SettleDelay separates channel reads to avoid acoustic cross-talk.
	SettleDelay time.Duration `yaml:"settle_delay"`
}

type SteeringConfig struct {
	// FrontThresholdM triggers avoidance when the front distance drops to it.
	FrontThresholdM float64 `yaml:"front_threshold_m"`
	LeftAngleDeg    float64 `yaml:"left_angle_deg"`
	RightAngleDeg   float64 `yaml:"right_angle_deg"`
	CenterAngleDeg  float64 `yaml:"center_angle_deg"`
	// SmoothingGain is the per-update fraction of remaining travel.
	SmoothingGain float64 `yaml:"smoothing_gain"`
	// ReturnDelay is the grace period before re-centering starts.
	ReturnDelay time.Duration `yaml:"return_delay"`
	// CenterBandDeg is the |angle-center| band that ends re-centering.
	CenterBandDeg float64 `yaml:"center_band_deg"`
}

type MotorConfig struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`

	// OutputMax clamps PID output (PWM duty counts).
	OutputMax float64 `yaml:"output_max"`
	// FeedbackLag is the first-order lag factor of the RPM model.
	FeedbackLag float64 `yaml:"feedback_lag"`

	CruiseRPM float64 `yaml:"cruise_rpm"`
	AvoidRPM  float64 `yaml:"avoid_rpm"`
}

type ActuatorConfig struct {
	// ServoChannel/MotorChannel are sysfs PWM channel numbers.
	ServoChannel int `yaml:"servo_channel"`
	MotorChannel int `yaml:"motor_channel"`
	// BuzzerPin is BCM GPIO numbering.
	BuzzerPin int `yaml:"buzzer_pin"`
}

type HTTPConfig struct {
	Enable bool   `yaml:"enable"`
	Addr   string `yaml:"addr"`
}

type TelemetryConfig struct {
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`

	// UDPDest mirrors frames to a host:port, usually the LAN broadcast
	// address. Empty disables the mirror.
	UDPDest string `yaml:"udp_dest"`

	MQTT MQTTConfig `yaml:"mqtt"`
}

type MQTTConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type WiFiConfig struct {
	Enable   bool   `yaml:"enable"`
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
}

type CameraConfig struct {
	Enable    bool   `yaml:"enable"`
	StreamURL string `yaml:"stream_url"`

	InferenceURL      string        `yaml:"inference_url"`
	InferenceInterval time.Duration `yaml:"inference_interval"`
}

type GPSConfig struct {
	Enable bool   `yaml:"enable"`
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
}

type BatteryConfig struct {
	Enable    bool    `yaml:"enable"`
	Bus       string  `yaml:"bus"`
	Addr      uint16  `yaml:"addr"`
	ShuntOhms float64 `yaml:"shunt_ohms"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	if cfg.Control.SensorInterval <= 0 {
		cfg.Control.SensorInterval = 1 * time.Second
	}
	if cfg.Control.RudderInterval <= 0 {
		cfg.Control.RudderInterval = 100 * time.Millisecond
	}
	if cfg.Control.BuzzerInterval <= 0 {
		cfg.Control.BuzzerInterval = 500 * time.Millisecond
	}
	if cfg.Control.PollPeriod <= 0 {
		cfg.Control.PollPeriod = 10 * time.Millisecond
	}

	if cfg.Ranging.EchoTimeout <= 0 {
		cfg.Ranging.EchoTimeout = 30 * time.Millisecond
	}
	// Below 50ms channels hear each other's echoes.
	if cfg.Ranging.SettleDelay < 50*time.Millisecond {
		cfg.Ranging.SettleDelay = 50 * time.Millisecond
	}

	if cfg.Steering.FrontThresholdM <= 0 {
		cfg.Steering.FrontThresholdM = 0.50
	}
	if cfg.Steering.LeftAngleDeg == 0 {
		cfg.Steering.LeftAngleDeg = 45
	}
	if cfg.Steering.RightAngleDeg == 0 {
		cfg.Steering.RightAngleDeg = 135
	}
	if cfg.Steering.CenterAngleDeg == 0 {
		cfg.Steering.CenterAngleDeg = 90
	}
	if cfg.Steering.SmoothingGain <= 0 || cfg.Steering.SmoothingGain >= 1 {
		cfg.Steering.SmoothingGain = 0.3
	}
	if cfg.Steering.ReturnDelay <= 0 {
		cfg.Steering.ReturnDelay = 2 * time.Second
	}
	if cfg.Steering.CenterBandDeg <= 0 {
		cfg.Steering.CenterBandDeg = 2
	}
	if cfg.Steering.LeftAngleDeg >= cfg.Steering.RightAngleDeg {
		return Config{}, fmt.Errorf("steering.left_angle_deg must be below steering.right_angle_deg")
	}

	if cfg.Motor.Kp == 0 {
		cfg.Motor.Kp = 1.0
	}
	if cfg.Motor.Ki == 0 {
		cfg.Motor.Ki = 0.5
	}
	if cfg.Motor.Kd == 0 {
		cfg.Motor.Kd = 0.1
	}
	if cfg.Motor.OutputMax <= 0 {
		cfg.Motor.OutputMax = 255
	}
	if cfg.Motor.FeedbackLag <= 0 || cfg.Motor.FeedbackLag > 1 {
		cfg.Motor.FeedbackLag = 0.05
	}
	if cfg.Motor.CruiseRPM <= 0 {
		cfg.Motor.CruiseRPM = 100
	}
	if cfg.Motor.AvoidRPM <= 0 {
		cfg.Motor.AvoidRPM = 50
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}

	if cfg.Telemetry.Interval <= 0 {
		cfg.Telemetry.Interval = 2 * time.Second
	}
	if cfg.Telemetry.MQTT.Enable {
		if cfg.Telemetry.MQTT.Broker == "" {
			return Config{}, fmt.Errorf("telemetry.mqtt.broker is required when telemetry.mqtt.enable is true")
		}
		if cfg.Telemetry.MQTT.Topic == "" {
			cfg.Telemetry.MQTT.Topic = "rover/telemetry"
		}
	}

	if cfg.WiFi.Enable && cfg.WiFi.SSID == "" {
		return Config{}, fmt.Errorf("wifi.ssid is required when wifi.enable is true")
	}

	if cfg.Camera.Enable {
		if cfg.Camera.StreamURL == "" {
			return Config{}, fmt.Errorf("camera.stream_url is required when camera.enable is true")
		}
		if cfg.Camera.InferenceInterval <= 0 {
			cfg.Camera.InferenceInterval = 2 * time.Second
		}
	}

	// GPS device may stay empty; the service auto-detects ttyACM/ttyUSB.
	if cfg.GPS.Enable && cfg.GPS.Baud <= 0 {
		cfg.GPS.Baud = 9600
	}

	if cfg.Sim.Enable && cfg.Sim.Scenario == "" {
		return Config{}, fmt.Errorf("sim.scenario is required when sim.enable is true")
	}

	if cfg.Battery.Enable {
		if cfg.Battery.Bus == "" {
			cfg.Battery.Bus = "/dev/i2c-1"
		}
		if cfg.Battery.Addr == 0 {
			cfg.Battery.Addr = 0x40
		}
		if cfg.Battery.ShuntOhms <= 0 {
			cfg.Battery.ShuntOhms = 0.1
		}
	}

	return cfg, nil
}
