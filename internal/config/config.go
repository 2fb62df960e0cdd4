// Package config loads the Agent configuration surface described by the
// call-lifecycle engine. It follows the same viper + validator pattern the
// rest of this codebase uses for application configuration.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AgentConfig is the full configuration surface of one SIP Agent.
type AgentConfig struct {
	PublicIP      string `mapstructure:"PUBLIC_IP" validate:"required"`
	PublicPort    int    `mapstructure:"PUBLIC_PORT" validate:"required,min=1,max=65535"`
	BoundAddress  string `mapstructure:"BOUND_ADDRESS" validate:"required"`

	SIPUsername string `mapstructure:"SIP_USERNAME" validate:"required"`
	SIPPassword string `mapstructure:"SIP_PASSWORD" validate:"required"`
	SIPDomain   string `mapstructure:"SIP_DOMAIN" validate:"required"`

	OutboundProxy    string `mapstructure:"OUTBOUND_PROXY"`
	ContactURI       string `mapstructure:"CONTACT_URI"`
	RegisterOnAdd    bool   `mapstructure:"REGISTER_ON_ADD"`
	LogLevel         string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogDir           string `mapstructure:"LOG_DIR"`

	CodecIDs          []string `mapstructure:"CODEC_IDS"`
	CodecPriorities   []int    `mapstructure:"CODEC_PRIORITIES"`
	ClockRate         int      `mapstructure:"CLOCK_RATE" validate:"required"`
	SndClockRate      int      `mapstructure:"SND_CLOCK_RATE" validate:"required"`
	ChannelCount      int      `mapstructure:"CHANNEL_COUNT" validate:"required,min=1"`
	PTimeMs           int      `mapstructure:"PTIME_MS" validate:"required,min=1"`
	ECTailLengthMs    int      `mapstructure:"EC_TAIL_LENGTH_MS"`
	ECOptions         int      `mapstructure:"EC_OPTIONS"`
	VADEnable         bool     `mapstructure:"VAD_ENABLE"`
	TxDropPercent     int      `mapstructure:"TX_DROP_PERCENT"`
	NATTypeInSDP      int      `mapstructure:"NAT_TYPE_IN_SDP"`
	STUNServer        string   `mapstructure:"STUN_SERVER"`
	NATKeepAliveSec   int      `mapstructure:"NAT_KEEPALIVE_SEC"`

	RTPPortRangeStart int `mapstructure:"RTP_PORT_RANGE_START" validate:"required,min=1024,max=65534"`
	RTPPortRangeEnd   int `mapstructure:"RTP_PORT_RANGE_END" validate:"required,min=1025,max=65535,gtfield=RTPPortRangeStart"`

	SilenceAmplitudeThreshold float64 `mapstructure:"SILENCE_AMPLITUDE_THRESHOLD" validate:"required,gt=0"`
	SilenceDurationMs         int64   `mapstructure:"SILENCE_DURATION_MS" validate:"required,gt=0"`
	SilenceCheckIntervalMs    int64   `mapstructure:"SILENCE_CHECK_INTERVAL_MS" validate:"required,gt=0"`

	WelcomeDelayMs           int64  `mapstructure:"WELCOME_DELAY_MS"`
	WelcomeMessageDurationCapMs int64 `mapstructure:"WELCOME_MESSAGE_DURATION_CAP_MS"`
	MaxCallLengthSec         int64  `mapstructure:"MAX_CALL_LENGTH_SEC"`

	AudioFormat     string `mapstructure:"AUDIO_FORMAT" validate:"oneof=pcm wav"`
	AutoAnswer      bool   `mapstructure:"AUTO_ANSWER"`
	RecordingDir    string `mapstructure:"RECORDING_DIR" validate:"required"`
	WelcomeWavPath  string `mapstructure:"WELCOME_WAV_PATH"`
	DisconnectWavPath string `mapstructure:"DISCONNECT_WAV_PATH"`

	RedisURL            string        `mapstructure:"REDIS_URL"`
	TickInterval        time.Duration `mapstructure:"TICK_INTERVAL"`
	CommandsPerTick     int           `mapstructure:"COMMANDS_PER_TICK" validate:"required,min=1"`
	StartTimeout        time.Duration `mapstructure:"START_TIMEOUT"`
	StopTimeout         time.Duration `mapstructure:"STOP_TIMEOUT"`
	OrchestratorWorkers int           `mapstructure:"ORCHESTRATOR_WORKERS" validate:"required,min=1"`

	TranscriberProvider string `mapstructure:"TRANSCRIBER_PROVIDER" validate:"oneof=google deepgram"`
	TTSProvider         string `mapstructure:"TTS_PROVIDER" validate:"oneof=google elevenlabs"`
	LLMProvider         string `mapstructure:"LLM_PROVIDER" validate:"oneof=openai anthropic"`
	PromptName          string `mapstructure:"PROMPT_NAME"`
	TTSVoice            string `mapstructure:"TTS_VOICE"`
	TTSOutputDir        string `mapstructure:"TTS_OUTPUT_DIR"`

	GoogleProjectID        string `mapstructure:"GOOGLE_PROJECT_ID"`
	GoogleRegion           string `mapstructure:"GOOGLE_REGION"`
	GoogleAPIKey           string `mapstructure:"GOOGLE_API_KEY"`
	GoogleServiceAccountKey string `mapstructure:"GOOGLE_SERVICE_ACCOUNT_KEY"`

	DeepgramAPIKey string `mapstructure:"DEEPGRAM_API_KEY"`

	ElevenLabsAPIKey string `mapstructure:"ELEVENLABS_API_KEY"`

	OpenAIAPIKey string `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel  string `mapstructure:"OPENAI_MODEL"`

	AnthropicAPIKey string `mapstructure:"ANTHROPIC_API_KEY"`
	AnthropicModel  string `mapstructure:"ANTHROPIC_MODEL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("BOUND_ADDRESS", "0.0.0.0")
	v.SetDefault("REGISTER_ON_ADD", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_DIR", "./logs")
	v.SetDefault("CODEC_IDS", []string{"PCMU", "PCMA"})
	v.SetDefault("CODEC_PRIORITIES", []int{128, 128})
	v.SetDefault("CLOCK_RATE", 8000)
	v.SetDefault("SND_CLOCK_RATE", 8000)
	v.SetDefault("CHANNEL_COUNT", 1)
	v.SetDefault("PTIME_MS", 20)
	v.SetDefault("EC_TAIL_LENGTH_MS", 200)
	v.SetDefault("VAD_ENABLE", true)
	v.SetDefault("NAT_TYPE_IN_SDP", 0)
	v.SetDefault("NAT_KEEPALIVE_SEC", 30)
	v.SetDefault("RTP_PORT_RANGE_START", 16000)
	v.SetDefault("RTP_PORT_RANGE_END", 17000)
	v.SetDefault("SILENCE_AMPLITUDE_THRESHOLD", 100.0)
	v.SetDefault("SILENCE_DURATION_MS", int64(1000))
	v.SetDefault("SILENCE_CHECK_INTERVAL_MS", int64(500))
	v.SetDefault("WELCOME_DELAY_MS", int64(500))
	v.SetDefault("WELCOME_MESSAGE_DURATION_CAP_MS", int64(15000))
	v.SetDefault("MAX_CALL_LENGTH_SEC", int64(3600))
	v.SetDefault("AUDIO_FORMAT", "wav")
	v.SetDefault("AUTO_ANSWER", true)
	v.SetDefault("RECORDING_DIR", "./recordings")
	v.SetDefault("TICK_INTERVAL", 100*time.Millisecond)
	v.SetDefault("COMMANDS_PER_TICK", 8)
	v.SetDefault("START_TIMEOUT", 5*time.Second)
	v.SetDefault("STOP_TIMEOUT", 5*time.Second)
	v.SetDefault("ORCHESTRATOR_WORKERS", 4)
	v.SetDefault("TRANSCRIBER_PROVIDER", "google")
	v.SetDefault("TTS_PROVIDER", "google")
	v.SetDefault("LLM_PROVIDER", "openai")
	v.SetDefault("PROMPT_NAME", "generic")
	v.SetDefault("GOOGLE_REGION", "global")
}

// Load builds an AgentConfig from environment variables, optionally
// preceded by an .env file at path (if path is empty, ENV_PATH is used
// instead, falling back to no file at all), and validates it.
func Load(path string) (*AgentConfig, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter("__"))
	v.SetEnvPrefix("ECHOMATRIX")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	setDefaults(v)
	// AutomaticEnv alone only reaches keys viper already knows about, so
	// bind every field explicitly; keys without a default would otherwise
	// never be read from the environment by Unmarshal.
	t := reflect.TypeOf(AgentConfig{})
	for i := 0; i < t.NumField(); i++ {
		if key := t.Field(i).Tag.Get("mapstructure"); key != "" {
			_ = v.BindEnv(key)
		}
	}

	if path == "" {
		path = os.Getenv("ENV_PATH")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg AgentConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return &cfg, nil
}
