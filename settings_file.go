package stochastic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/gogpu/wgpu/hal"
	"github.com/pelletier/go-toml/v2"
)

// SettingsFile is the on-disk form of Settings:
//
//	accumulation_mode = "finite"
//	accumulation_iterations = 32
//	random_mask = "masks/dither.png"
//
// A relative random_mask is resolved against the directory of the file.
type SettingsFile struct {
	AccumulationMode       AccumulationMode `toml:"accumulation_mode"`
	AccumulationIterations int              `toml:"accumulation_iterations"`
	RandomMask             string           `toml:"random_mask,omitempty"`
}

// DecodeSettings reads a settings file. Missing keys keep their defaults;
// unknown keys are an error.
func DecodeSettings(r io.Reader) (SettingsFile, error) {
	def := DefaultSettings()
	f := SettingsFile{
		AccumulationMode:       def.AccumulationMode,
		AccumulationIterations: def.AccumulationIterations,
	}
	dec := toml.NewDecoder(r).DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		var missing *toml.StrictMissingError
		if errors.As(err, &missing) {
			return SettingsFile{}, fmt.Errorf("decode settings: %s", missing.String())
		}
		return SettingsFile{}, fmt.Errorf("decode settings: %w", err)
	}
	return f, nil
}

// EncodeSettings writes f in TOML form.
func EncodeSettings(w io.Writer, f SettingsFile) error {
	if err := toml.NewEncoder(w).Encode(f); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return nil
}

// LoadSettingsFile reads and decodes the settings file at path.
func LoadSettingsFile(path string) (SettingsFile, error) {
	fh, err := os.Open(path)
	if err != nil {
		return SettingsFile{}, err
	}
	defer fh.Close()

	f, err := DecodeSettings(fh)
	if err != nil {
		return SettingsFile{}, fmt.Errorf("%s: %w", path, err)
	}
	if f.RandomMask != "" && !filepath.IsAbs(f.RandomMask) {
		f.RandomMask = filepath.Join(filepath.Dir(path), f.RandomMask)
	}
	return f, nil
}

// Settings converts the file into Settings with the given mask view.
func (f SettingsFile) Settings(mask hal.TextureView) Settings {
	return Settings{
		AccumulationMode:       f.AccumulationMode,
		AccumulationIterations: f.AccumulationIterations,
		RandomMask:             mask,
	}.Normalize()
}

// MaskLoader turns a random mask path into a texture view.
// Pipeline.LoadRandomMask is the usual implementation.
type MaskLoader func(path string) (hal.TextureView, error)

// ReloadSettings loads path into store. When the file names a random mask
// and masks is non-nil, the mask is loaded through it.
func ReloadSettings(path string, store *SettingsStore, masks MaskLoader) error {
	f, err := LoadSettingsFile(path)
	if err != nil {
		return err
	}
	var mask hal.TextureView
	if f.RandomMask != "" && masks != nil {
		mask, err = masks(f.RandomMask)
		if err != nil {
			return fmt.Errorf("load random mask: %w", err)
		}
	}
	s := f.Settings(mask)
	store.Store(s)
	Logger().Info("settings loaded",
		"path", path,
		"mode", s.AccumulationMode.String(),
		"iterations", s.AccumulationIterations,
		"random_mask", f.RandomMask)
	return nil
}

// WatchSettingsFile reloads path into store whenever it changes, until ctx
// is done. The directory is watched rather than the file so that editors
// that replace the file on save are followed. Reload errors are logged and
// the previous settings stay in effect.
//
// WatchSettingsFile blocks; run it in its own goroutine.
func WatchSettingsFile(ctx context.Context, path string, store *SettingsStore, masks MaskLoader) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create settings watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := ReloadSettings(target, store, masks); err != nil {
				Logger().Warn("settings reload failed", "path", target, "err", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			Logger().Warn("settings watcher error", "err", err)
		}
	}
}
