//nolint:lll
package config

// Config represents the complete configuration for the ocrlite application.
// It includes settings for all commands (image, pdf, serve) and supports
// loading from configuration files, .env files, environment variables and
// command-line flags.
type Config struct {
	// Global settings
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir" json:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format" json:"log_format"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Individual model files, overriding the defaults inside ModelsDir
	Models ModelsConfig `mapstructure:"models" yaml:"models" json:"models"`

	// Pipeline configuration
	Pipeline PipelineConfig `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`

	// Output configuration
	Output OutputConfig `mapstructure:"output" yaml:"output" json:"output"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`

	// Batch processing configuration
	Batch BatchConfig `mapstructure:"batch" yaml:"batch" json:"batch"`

	// GPU configuration
	GPU GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`
}

// ModelsConfig names the model and keys files. Empty entries fall back to
// det.onnx, cls.onnx, rec.onnx and keys.txt inside the models directory.
type ModelsConfig struct {
	DetPath  string `mapstructure:"det_path" yaml:"det_path" json:"det_path"`
	ClsPath  string `mapstructure:"cls_path" yaml:"cls_path" json:"cls_path"`
	RecPath  string `mapstructure:"rec_path" yaml:"rec_path" json:"rec_path"`
	KeysPath string `mapstructure:"keys_path" yaml:"keys_path" json:"keys_path"`
}

// PipelineConfig contains OCR pipeline settings.
type PipelineConfig struct {
	Padding           int     `mapstructure:"padding" yaml:"padding" json:"padding"`
	PadColor          string  `mapstructure:"pad_color" yaml:"pad_color" json:"pad_color"`
	MaxSideLen        int     `mapstructure:"max_side_len" yaml:"max_side_len" json:"max_side_len"`
	BoxScoreThreshold float64 `mapstructure:"box_score_threshold" yaml:"box_score_threshold" json:"box_score_threshold"`
	BoxThreshold      float32 `mapstructure:"box_threshold" yaml:"box_threshold" json:"box_threshold"`
	UnclipRatio       float64 `mapstructure:"unclip_ratio" yaml:"unclip_ratio" json:"unclip_ratio"`
	CalcAngle         bool    `mapstructure:"calc_angle" yaml:"calc_angle" json:"calc_angle"`
	MostAngle         bool    `mapstructure:"most_angle" yaml:"most_angle" json:"most_angle"`
	NumThreads        int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	MaxWorkers        int     `mapstructure:"max_workers" yaml:"max_workers" json:"max_workers"`
}

// OutputConfig contains output formatting settings.
type OutputConfig struct {
	Format      string `mapstructure:"format" yaml:"format" json:"format"`
	Dir         string `mapstructure:"dir" yaml:"dir" json:"dir"`
	Console     bool   `mapstructure:"console" yaml:"console" json:"console"`
	PartImages  bool   `mapstructure:"part_images" yaml:"part_images" json:"part_images"`
	ResultImage bool   `mapstructure:"result_image" yaml:"result_image" json:"result_image"`
	ResultText  bool   `mapstructure:"result_text" yaml:"result_text" json:"result_text"`
	DebugImages bool   `mapstructure:"debug_images" yaml:"debug_images" json:"debug_images"`
	BoxColor    string `mapstructure:"box_color" yaml:"box_color" json:"box_color"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	MaxUploadMB     int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb" json:"max_upload_mb"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// Per-client limits, 0 disables them
	RequestsPerMinute int `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	MaxUploadMBPerDay int `mapstructure:"max_upload_mb_per_day" yaml:"max_upload_mb_per_day" json:"max_upload_mb_per_day"`
}

// BatchConfig contains settings for directory and multi-file runs.
type BatchConfig struct {
	Workers         int  `mapstructure:"workers" yaml:"workers" json:"workers"`
	ContinueOnError bool `mapstructure:"continue_on_error" yaml:"continue_on_error" json:"continue_on_error"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}
