package main

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

var conf *Conf

type Conf struct {
	App struct {
		Version string `toml:"version"`
		Title   string `toml:"title"`
	} `toml:"app"`
	Input struct {
		File   string `toml:"file"`
		Format string `toml:"format"`
	} `toml:"input"`
	Output struct {
		Directory      string `toml:"directory"`
		Format         string `toml:"format"`
		LogDir         string `toml:"logDir"`
		OutputTerminal bool   `toml:"outputTerminal"`
	} `toml:"output"`
	Task struct {
		Workers int `toml:"workers"`
	} `toml:"task"`
	Tile struct {
		Minzoom int    `toml:"minzoom"`
		Maxzoom int    `toml:"maxzoom"`
		Buffer  int    `toml:"buffer"`
		Extent  int    `toml:"extent"`
		Layer   string `toml:"layer"`
	} `toml:"tile"`
}

// InitConf 初始化配置
func InitConf(cfgFile string) {
	if cfgFile == "" {
		cfgFile = "conf.toml"
	}
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		// flags alone are enough to run, config is optional
		fmt.Printf("config file(%s) not exist, using defaults\n", cfgFile)
	} else {
		viper.SetConfigType("toml")
		viper.SetConfigFile(cfgFile)
		viper.AutomaticEnv() // read in environment variables that match
		if err := viper.ReadInConfig(); err != nil {
			fmt.Printf("read config file(%s) error, details: %s\n", viper.ConfigFileUsed(), err)
		}
	}
	// 设置默认值
	viper.SetDefault("app.version", "v 0.1.0")
	viper.SetDefault("app.title", "MapCloud VTiler")
	viper.SetDefault("output.format", "files")
	viper.SetDefault("output.directory", "output")
	viper.SetDefault("output.outputTerminal", true)
	viper.SetDefault("task.workers", 4)
	viper.SetDefault("tile.minzoom", 0)
	viper.SetDefault("tile.maxzoom", 14)
	viper.SetDefault("tile.buffer", 64)
	viper.SetDefault("tile.extent", 4096)

	if err := viper.Unmarshal(&conf); err != nil {
		panic("配置文件解析失败")
	}
}
