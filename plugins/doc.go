// Package plugins hosts the chart plugin subpackages. Each subpackage
// contributes dataset sources and chart renderers through the core plugin
// registry and must not reach into the HTTP adapters, the storage backends
// or the command line.
package plugins
