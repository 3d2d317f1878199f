package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for cdnimg
type Config struct {
	CloudName    string      `mapstructure:"cloud_name"`
	CName        string      `mapstructure:"cname"`
	DeliveryType string      `mapstructure:"delivery_type"`
	Folder       string      `mapstructure:"folder"`
	ImagesPath   interface{} `mapstructure:"images_path"`
	PrivateCDN   bool        `mapstructure:"private_cdn"`
	UploadPreset string      `mapstructure:"upload_preset"`
	Concurrency  int         `mapstructure:"concurrency"`

	// Credentials only come from the environment.
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
}

// DefaultImagesPath is used when images_path is not configured.
const DefaultImagesPath = "/images"

var defaultConfig = Config{
	DeliveryType: "fetch",
	ImagesPath:   DefaultImagesPath,
	PrivateCDN:   false,
	Concurrency:  0,
}

// envBindings maps config keys onto the provider environment variables
// they may also be read from, checked in order after CDNIMG_<KEY>.
var envBindings = map[string][]string{
	"cloud_name":    {"CLOUDINARY_CLOUD_NAME"},
	"api_key":       {"CLOUDINARY_API_KEY"},
	"api_secret":    {"CLOUDINARY_API_SECRET"},
	"upload_preset": {"CLOUDINARY_UPLOAD_PRESET"},
}

// flagKeys maps CLI flag names onto config keys.
var flagKeys = map[string]string{
	"cloud-name":    "cloud_name",
	"cname":         "cname",
	"delivery-type": "delivery_type",
	"folder":        "folder",
	"images-path":   "images_path",
	"private-cdn":   "private_cdn",
	"upload-preset": "upload_preset",
	"concurrency":   "concurrency",
}

// LoadOptions control where LoadConfig looks.
type LoadOptions struct {
	// ConfigFile is an explicit file; when empty cdnimg.yaml / .cdnimg.yaml
	// are searched in the working directory and $HOME.
	ConfigFile string
	// Flags, when set, override file and environment values for flags the
	// user actually passed.
	Flags *pflag.FlagSet
}

// LoadConfig loads configuration from defaults, config file, environment and flags.
func LoadConfig(opts LoadOptions) (*Config, error) {
	v := viper.New()

	v.SetDefault("cloud_name", "")
	v.SetDefault("cname", "")
	v.SetDefault("delivery_type", defaultConfig.DeliveryType)
	v.SetDefault("folder", "")
	v.SetDefault("images_path", defaultConfig.ImagesPath)
	v.SetDefault("private_cdn", defaultConfig.PrivateCDN)
	v.SetDefault("upload_preset", "")
	v.SetDefault("concurrency", defaultConfig.Concurrency)
	v.SetDefault("api_key", "")
	v.SetDefault("api_secret", "")

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", opts.ConfigFile, err)
		}
	} else {
		v.SetConfigName("cdnimg")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
			// Dotfile variant, optional as well
			v.SetConfigName(".cdnimg")
			if err := v.ReadInConfig(); err != nil && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix("CDNIMG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, envs := range envBindings {
		args := append([]string{key, "CDNIMG_" + strings.ToUpper(key)}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if opts.Flags != nil {
		if err := bindFlags(v, opts.Flags); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	config.DeliveryType = strings.ToLower(strings.TrimSpace(config.DeliveryType))
	if config.ImagesPath == nil {
		config.ImagesPath = DefaultImagesPath
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// bindFlags lets explicitly passed flags win over every other source.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var bindErr error
	fs.Visit(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("bind flag --%s: %w", f.Name, err)
		}
	})
	return bindErr
}

// RegisterFlags adds the configuration override flags to a command's flag set.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("cloud-name", "", "CDN account (cloud) name")
	fs.String("cname", "", "Custom delivery hostname")
	fs.String("delivery-type", "", "Delivery type: fetch|upload (default fetch)")
	fs.String("folder", "", "CDN folder (default: site name)")
	fs.StringSlice("images-path", nil, "Image directories or glob patterns under the publish directory (default /images)")
	fs.Bool("private-cdn", false, "Use the account's private CDN hostname")
	fs.String("upload-preset", "", "Upload preset applied to uploaded assets")
	fs.Int("concurrency", 0, "Parallel asset resolutions and document rewrites (0 = CPU count)")
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.APIKey != "" {
		c.APIKey = "****"
	}
	if c.APISecret != "" {
		c.APISecret = "****"
	}
	return c
}
