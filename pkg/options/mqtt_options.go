package options

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/pflag"

	"github.com/roidota/roidota/pkg/mqtt"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions contains configuration for the MQTT client and topic layout.
type MqttOptions struct {
	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	// Client behavior
	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	PublishTimeout time.Duration `json:"publish-timeout" mapstructure:"publish-timeout"`
	SessionExpiry  uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart     bool          `json:"clean-start" mapstructure:"clean-start"`
	QoS            int           `json:"qos" mapstructure:"qos"`

	// InsecureSkipVerify controls whether a client verifies the server's certificate chain and host name.
	// This should be used only for testing.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// TopicRoot is the namespace all device topics are built under: {TopicRoot}/status/{id}.
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`

	// SharedGroup, when set, subscribes through $share/<group>/ so replicas split inbound traffic.
	SharedGroup string `json:"shared-group" mapstructure:"shared-group"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Broker:         "tcp://localhost:1883",
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 5 * time.Second,
		PublishTimeout: 10 * time.Second,
		SessionExpiry:  60,
		CleanStart:     true,
		QoS:            1,
		TopicRoot:      "roidota",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error

	if o.Broker == "" {
		errs = append(errs, fmt.Errorf("--mqtt.broker must be set"))
	} else if _, err := url.Parse(o.Broker); err != nil {
		errs = append(errs, fmt.Errorf("--mqtt.broker: %w", err))
	}

	if o.QoS < 0 || o.QoS > 2 {
		errs = append(errs, fmt.Errorf("--mqtt.qos must be 0, 1 or 2, got %d", o.QoS))
	}

	if o.PublishTimeout <= 0 {
		errs = append(errs, fmt.Errorf("--mqtt.publish-timeout must be positive"))
	}

	if o.TopicRoot == "" {
		errs = append(errs, fmt.Errorf("--mqtt.topic-root must be set"))
	}

	return errs
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "The URL of the MQTT broker.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "Explicit Client ID (optional, derived from the hostname when empty).")

	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT Keep Alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for establishing MQTT connection.")
	fs.DurationVar(&o.PublishTimeout, "mqtt.publish-timeout", o.PublishTimeout, "Maximum wait for the broker to acknowledge an outbound message.")
	fs.Uint32Var(&o.SessionExpiry, "mqtt.session-expiry", o.SessionExpiry, "MQTT Session Expiry Interval in seconds.")
	fs.BoolVar(&o.CleanStart, "mqtt.clean-start", o.CleanStart, "Start with a clean MQTT session.")
	fs.IntVar(&o.QoS, "mqtt.qos", o.QoS, "QoS level for subscriptions and outbound messages.")
	fs.BoolVar(&o.InsecureSkipVerify, "mqtt.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")

	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "Namespace prefix of all device topics.")
	fs.StringVar(&o.SharedGroup, "mqtt.shared-group", o.SharedGroup, "Shared subscription group for running several hub replicas.")
}

func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	return &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		Username:           o.Username,
		Password:           o.Password,
		ClientID:           o.ClientID,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		SessionExpiry:      o.SessionExpiry,
		ConnectTimeout:     o.ConnectTimeout,
		PublishTimeout:     o.PublishTimeout,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
	}
}
