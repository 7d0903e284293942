package raster

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var worldFileExt = map[string]string{
	".png":  ".pgw",
	".tif":  ".tfw",
	".tiff": ".tfw",
	".jpg":  ".jgw",
	".jpeg": ".jgw",
}

// WorldFilePath returns the sidecar path for an image path: x.png -> x.pgw.
// Unknown extensions use ".wld".
func WorldFilePath(path string) string {
	ext := filepath.Ext(path)
	side, ok := worldFileExt[strings.ToLower(ext)]
	if !ok {
		side = ".wld"
	}
	return strings.TrimSuffix(path, ext) + side
}

// EncodeWorldFile renders the six world-file lines. World files reference the
// centre of the top-left pixel, unlike GeoTransform which references its corner.
func EncodeWorldFile(g GeoTransform) []byte {
	cx := g[0] + g[1]/2 + g[2]/2
	cy := g[3] + g[4]/2 + g[5]/2
	lines := []float64{g[1], g[4], g[2], g[5], cx, cy}
	var sb strings.Builder
	for _, v := range lines {
		sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		sb.WriteByte('\n')
	}
	return []byte(sb.String())
}

// DecodeWorldFile parses world-file content.
func DecodeWorldFile(data []byte) (GeoTransform, error) {
	var vals []float64
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return GeoTransform{}, fmt.Errorf("world file line %d: %w", len(vals)+1, err)
		}
		vals = append(vals, v)
	}
	if len(vals) != 6 {
		return GeoTransform{}, fmt.Errorf("world file has %d values, want 6", len(vals))
	}
	a, d, b, e, c, f := vals[0], vals[1], vals[2], vals[3], vals[4], vals[5]
	return GeoTransform{c - a/2 - b/2, a, b, f - d/2 - e/2, d, e}, nil
}

// ReadWorldFile loads the sidecar of an image path. ok is false when none exists.
func ReadWorldFile(imagePath string) (g GeoTransform, ok bool, err error) {
	candidates := []string{WorldFilePath(imagePath), strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".wld"}
	for _, p := range candidates {
		data, readErr := os.ReadFile(p)
		if os.IsNotExist(readErr) {
			continue
		}
		if readErr != nil {
			return GeoTransform{}, false, readErr
		}
		g, err = DecodeWorldFile(data)
		if err != nil {
			return GeoTransform{}, false, fmt.Errorf("%s: %w", p, err)
		}
		return g, true, nil
	}
	return IdentityTransform, false, nil
}
