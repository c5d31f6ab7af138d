// Package config contains code to set the default values and read
// config files to be used throughout the whole application
package config

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/pflag"
	v "github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	runGC          = pflag.Bool("run-gc", false, "Runs a single garbage collection sweep and exits")
	validLogLevels = []string{"debug", "info", "warn", "error", "fatal"}
)

// RunGCOnce reports whether the process was started only to run
// a single cleanup sweep
func RunGCOnce() bool {
	return *runGC
}

// Setup prepares everything config-related so that the app can
// start working. Function will return an error if something
// is critically wrong and the application can't run because of
// that.
func Setup() error {
	pflag.Parse()
	v.BindPFlags(pflag.CommandLine)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	v.AutomaticEnv()

	//
	// ENVS
	//
	v.BindEnv("app.log_level", "app_log_level")

	v.BindEnv("host.port", "host_port")
	v.BindEnv("host.cors_origins", "host_cors_origins")

	v.BindEnv("jwt.secret", "jwt_secret")

	v.BindEnv("upload.max_size", "upload_max_size")
	v.BindEnv("upload.chunk_size", "upload_chunk_size")
	v.BindEnv("upload.allowed_types", "upload_allowed_types")
	v.BindEnv("upload.session_ttl", "upload_session_ttl")
	v.BindEnv("upload.temp_dir", "upload_temp_dir")

	v.BindEnv("ffmpeg.path", "ffmpeg_path")
	v.BindEnv("ffmpeg.probe_path", "ffmpeg_probe_path")

	v.BindEnv("transcode.workers", "transcode_workers")
	v.BindEnv("transcode.max_jobs", "transcode_max_jobs")
	v.BindEnv("transcode.output_dir", "transcode_output_dir")

	v.BindEnv("cleanup.interval", "cleanup_interval")
	v.BindEnv("cleanup.failed_session_ttl", "cleanup_failed_session_ttl")
	v.BindEnv("cleanup.failed_media_ttl", "cleanup_failed_media_ttl")

	v.BindEnv("aws.region", "aws_region")
	v.BindEnv("aws.access_key_id", "aws_access_key_id")
	v.BindEnv("aws.secret_access_key", "aws_secret_access_key")
	v.BindEnv("aws.bucket", "aws_bucket")

	//
	// Defaults
	//
	v.SetDefault("app.log_level", "info")

	v.SetDefault("host.port", 8080)
	v.SetDefault("host.cors_origins", []string{"http://localhost:5173"})

	// Sizes are megabytes, durations go through time.ParseDuration
	v.SetDefault("upload.max_size", 2048)
	v.SetDefault("upload.chunk_size", 5)
	v.SetDefault("upload.allowed_types", []string{
		"video/mp4",
		"video/quicktime",
		"video/x-msvideo",
		"video/x-matroska",
	})
	v.SetDefault("upload.session_ttl", "24h")
	v.SetDefault("upload.temp_dir", "./temp")

	v.SetDefault("ffmpeg.path", "ffmpeg")
	v.SetDefault("ffmpeg.probe_path", "ffprobe")

	v.SetDefault("transcode.workers", 2)
	v.SetDefault("transcode.max_jobs", 32)
	v.SetDefault("transcode.output_dir", "./processed")

	v.SetDefault("cleanup.interval", "10m")
	v.SetDefault("cleanup.failed_session_ttl", "24h")
	v.SetDefault("cleanup.failed_media_ttl", "168h")

	v.SetDefault("aws.region", "us-east-1")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(v.ConfigFileNotFoundError); ok {
			return errors.New("config.toml file is missing")
		}

		return fmt.Errorf("failed to read config file, %w", err)
	}

	if !slices.Contains(validLogLevels, v.GetString("app.log_level")) {
		return errors.New("invalid log level provided")
	}

	if v.GetInt("host.port") <= 0 {
		return errors.New("invalid port provided")
	}

	if v.GetInt("upload.max_size") <= 0 {
		return errors.New("upload.max_size must be bigger than 0")
	}

	if v.GetInt("upload.chunk_size") <= 0 {
		return errors.New("upload.chunk_size must be bigger than 0")
	}

	if v.GetInt("upload.chunk_size") > v.GetInt("upload.max_size") {
		return errors.New("upload.chunk_size can't be bigger than upload.max_size")
	}

	for _, key := range []string{
		"upload.session_ttl",
		"cleanup.interval",
		"cleanup.failed_session_ttl",
		"cleanup.failed_media_ttl",
	} {
		if v.GetDuration(key) <= 0 {
			return fmt.Errorf("%s must be a positive duration", key)
		}
	}

	if v.GetInt("transcode.workers") <= 0 {
		return errors.New("transcode.workers must be bigger than 0")
	}

	if v.GetInt("transcode.max_jobs") <= 0 {
		return errors.New("transcode.max_jobs must be bigger than 0")
	}

	if v.GetString("jwt.secret") == "" {
		return errors.New("jwt secret is missing")
	}

	if v.GetString("aws.access_key_id") == "" {
		return errors.New("account access id can't be empty")
	}
	if v.GetString("aws.secret_access_key") == "" {
		return errors.New("secret access key can't be empty")
	}
	if v.GetString("aws.bucket") == "" {
		return errors.New("bucket can't be empty")
	}

	if len(v.GetStringSlice("upload.allowed_types")) == 0 {
		zap.L().Warn("No upload.allowed_types specified, any file type will be accepted")
	}

	v.Set("upload.max_size", v.GetInt64("upload.max_size")<<20)
	v.Set("upload.chunk_size", v.GetInt64("upload.chunk_size")<<20)
	return nil
}
