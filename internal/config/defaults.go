package config

import "path/filepath"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Paths.ImagesRoot == "" {
		cfg.Paths.ImagesRoot = filepath.Join("data", "raw_images")
	}
	if cfg.Paths.IndicesRoot == "" {
		cfg.Paths.IndicesRoot = filepath.Join("data", "indices")
	}
	if cfg.Paths.AdaptersRoot == "" {
		cfg.Paths.AdaptersRoot = filepath.Join("models", "adapters")
	}
	if cfg.Embedding.ImageModelPath == "" {
		cfg.Embedding.ImageModelPath = filepath.Join("models", "clip", "image_encoder.onnx")
	}
	if cfg.Embedding.TextModelPath == "" {
		cfg.Embedding.TextModelPath = filepath.Join("models", "clip", "text_encoder.onnx")
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.ImageSize == 0 {
		cfg.Embedding.ImageSize = 224
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 77
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 4096
	}
	if cfg.Search.DefaultDeck == "" {
		cfg.Search.DefaultDeck = "rws"
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 5
	}
	if cfg.Search.DefaultQuery == "" {
		cfg.Search.DefaultQuery = "a tarot card of the fool"
	}
	if cfg.Train.Epochs == 0 {
		cfg.Train.Epochs = 5
	}
	if cfg.Train.BatchSize == 0 {
		cfg.Train.BatchSize = 4
	}
	if cfg.Train.Rank == 0 {
		cfg.Train.Rank = 16
	}
	if cfg.Train.Alpha == 0 {
		cfg.Train.Alpha = 16
	}
	if cfg.Train.LearningRate == 0 {
		cfg.Train.LearningRate = 5e-5
	}
}
