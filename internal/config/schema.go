package config

// Config holds fable configuration.
// Stored at: {home}/config.yaml
type Config struct {
	Providers ProvidersCfg `mapstructure:"providers" yaml:"providers"`
	CouchDB   CouchDBCfg   `mapstructure:"couchdb" yaml:"couchdb"`
	Artifacts ArtifactsCfg `mapstructure:"artifacts" yaml:"artifacts"`
	Pipeline  PipelineCfg  `mapstructure:"pipeline" yaml:"pipeline"`
	Batch     BatchCfg     `mapstructure:"batch" yaml:"batch"`
	Server    ServerCfg    `mapstructure:"server" yaml:"server"`
}

// ProvidersCfg configures the generation backends.
type ProvidersCfg struct {
	OpenAI OpenAICfg `mapstructure:"openai" yaml:"openai"`
	Gemini GeminiCfg `mapstructure:"gemini" yaml:"gemini"`
}

// OpenAICfg configures the story text backend.
type OpenAICfg struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)
	Model  string `mapstructure:"model" yaml:"model"`
}

// GeminiCfg configures the image and speech backends.
type GeminiCfg struct {
	APIKey       string `mapstructure:"api_key" yaml:"api_key"` // API key (supports ${ENV_VAR} syntax)
	ImageModel   string `mapstructure:"image_model" yaml:"image_model"`
	SpeechModel  string `mapstructure:"speech_model" yaml:"speech_model"`
	DefaultVoice string `mapstructure:"default_voice" yaml:"default_voice"`
}

// CouchDBCfg holds the document store connection and container settings.
type CouchDBCfg struct {
	URL      string `mapstructure:"url" yaml:"url"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"` // supports ${ENV_VAR} syntax

	// ContainerName is the Docker container name (default: fable-couchdb)
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	// Image is the Docker image to use (default: couchdb:3.4)
	Image string `mapstructure:"image" yaml:"image"`
	// Port is the host port to bind (default: 5984)
	Port string `mapstructure:"port" yaml:"port"`
}

// ArtifactsCfg configures the blob storage gateway that serves images and audio.
type ArtifactsCfg struct {
	UploadURL  string `mapstructure:"upload_url" yaml:"upload_url"`
	PublicURL  string `mapstructure:"public_url" yaml:"public_url"`
	AuthHeader string `mapstructure:"auth_header" yaml:"auth_header"`
	AuthToken  string `mapstructure:"auth_token" yaml:"auth_token"` // supports ${ENV_VAR} syntax
}

// PipelineCfg tunes single-book generation.
type PipelineCfg struct {
	PageCount         int     `mapstructure:"page_count" yaml:"page_count"`
	MaxConcurrency    int     `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
}

// BatchCfg tunes batch sweeps.
type BatchCfg struct {
	MaxConcurrency     int `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	InterBookDelaySec  int `mapstructure:"inter_book_delay_sec" yaml:"inter_book_delay_sec"`
	InterChunkDelaySec int `mapstructure:"inter_chunk_delay_sec" yaml:"inter_chunk_delay_sec"`
}

// ServerCfg holds the HTTP listener settings.
type ServerCfg struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Providers: ProvidersCfg{
			OpenAI: OpenAICfg{
				APIKey: "${OPENAI_API_KEY}",
			},
			Gemini: GeminiCfg{
				APIKey:       "${GEMINI_API_KEY}",
				DefaultVoice: "Kore",
			},
		},
		CouchDB: CouchDBCfg{
			URL:           "http://localhost:5984",
			Username:      "fable",
			Password:      "${COUCHDB_PASSWORD}",
			ContainerName: "fable-couchdb",
			Image:         "couchdb:3.4",
			Port:          "5984",
		},
		Pipeline: PipelineCfg{
			PageCount:         20,
			MaxConcurrency:    2,
			RequestsPerSecond: 4,
		},
		Batch: BatchCfg{
			MaxConcurrency:     2,
			InterBookDelaySec:  2,
			InterChunkDelaySec: 1,
		},
		Server: ServerCfg{
			Host: "localhost",
			Port: "8480",
		},
	}
}

// ListenAddr returns the host:port the HTTP server binds.
func (c *Config) ListenAddr() string {
	return c.Server.Host + ":" + c.Server.Port
}
