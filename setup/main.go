package main

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
)

func main() {
	type cfgData struct {
		File   string
		EnvVar string
	}

	var cfgBase string
	var solrHost string
	var redisAddr string
	var port string
	flag.StringVar(&cfgBase, "dir", "config", "local directory holding the json config fragments")
	flag.StringVar(&solrHost, "solr", "", "solr host override, e.g. http://localhost:8983/solr")
	flag.StringVar(&redisAddr, "redis", "", "redis address override, e.g. localhost:6379")
	flag.StringVar(&port, "port", "8080", "port to run the service on")
	flag.Parse()

	if cfgBase == "" {
		log.Fatal("dir is required")
	}

	log.Printf("Generate service config from %s", cfgBase)
	cfgFiles := []cfgData{
		{File: "service.json", EnvVar: "VLO_SEARCH_WS_JSON_01"},
		{File: "solr.json", EnvVar: "VLO_SEARCH_WS_JSON_02"},
		{File: "cache.json", EnvVar: "VLO_SEARCH_WS_JSON_03"},
		{File: "facets.json", EnvVar: "VLO_SEARCH_WS_JSON_04"},
		{File: "sorts.json", EnvVar: "VLO_SEARCH_WS_JSON_05"},
	}

	out := make([]string, 0)
	for _, cf := range cfgFiles {
		tgtFile := path.Join(cfgBase, cf.File)
		jsonBytes, err := os.ReadFile(tgtFile)
		if err != nil {
			log.Fatal(err.Error())
		}

		if cf.EnvVar == "VLO_SEARCH_WS_JSON_01" {
			// this is the service config where the port is set to "8080"; override
			updated := strings.Replace(string(jsonBytes), "8080", port, 1)
			jsonBytes = []byte(updated)
		}

		var gzBuf bytes.Buffer
		gz := gzip.NewWriter(&gzBuf)
		_, zErr := gz.Write(jsonBytes)
		if zErr != nil {
			log.Fatal(zErr.Error())
		}
		gz.Close()
		sEnc := base64.StdEncoding.EncodeToString(gzBuf.Bytes())
		out = append(out, fmt.Sprintf("export %s=%s", cf.EnvVar, sEnc))
	}

	outF, err := os.Create("setup_env.sh")
	if err != nil {
		log.Fatal(err.Error())
	}
	outF.WriteString("#!/bin/bash\n\n")
	if solrHost != "" {
		outF.WriteString(fmt.Sprintf("export VLO_SEARCH_WS_SOLR_HOST=%s\n", solrHost))
	}
	if redisAddr != "" {
		outF.WriteString(fmt.Sprintf("export VLO_SEARCH_WS_REDIS_ADDR=%s\n", redisAddr))
	}
	outF.WriteString(strings.Join(out, "\n"))
	outF.WriteString("\n")
	outF.Close()
	os.Chmod("setup_env.sh", 0777)
}
