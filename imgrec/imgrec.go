// Package imgrec contains an image recorder used to automatically save raw frames to disk as FITS.
package imgrec

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/astrogo/fitsio"
	"github.com/ncruces/go-strftime"

	"github.jpl.nasa.gov/bdube/bullseye/camera"
)

// Recorder records frames to disk.  With a Format, each file is named by
// formatting the capture time with the strftime template.  Without one,
// files get incrementing names in yyyy-mm-dd subfolders.  It is safe for
// concurrent use.
type Recorder struct {
	mu sync.Mutex

	// counter is the internally incrementing counter
	counter int

	// Root is the root path
	Root string

	// Prefix is the prefix for the filenames when Format is empty
	Prefix string

	// Format is a strftime template for the filename, relative to Root
	Format string

	// Enabled allows consumers to switch recording off without losing the configuration
	Enabled bool
}

// Active returns true if the recorder is enabled and has somewhere to write
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Enabled && (r.Root != "" || r.Format != "")
}

// dateFolder returns the yyyy-mm-dd subfolder for t
func (r *Recorder) dateFolder(t time.Time) string {
	y, m, d := t.Date()
	return filepath.Join(r.Root, fmt.Sprintf("%04d-%02d-%02d", y, m, d))
}

// path computes the file name for a frame captured at t and makes its folder.
// Must hold the lock.
func (r *Recorder) path(t time.Time) (string, error) {
	var fn string
	if r.Format != "" {
		fn = filepath.Join(r.Root, strftime.Format(r.Format, t))
		if !strings.HasSuffix(fn, ".fits") {
			fn += ".fits"
		}
	} else {
		fldr := r.dateFolder(t)
		r.incr(fldr)
		fn = filepath.Join(fldr, fmt.Sprintf("%s%06d.fits", r.Prefix, r.counter))
	}
	err := os.MkdirAll(filepath.Dir(fn), 0777)
	return fn, err
}

// incr updates the filename counter by scanning the folder.  If there is an
// error, the counter is not incremented.  Must hold the lock.
func (r *Recorder) incr(fldr string) {
	files, err := os.ReadDir(fldr)
	if err != nil {
		if os.IsNotExist(err) {
			r.counter = 1
		}
		return
	}
	count := 0
	for _, file := range files {
		// skip directories, non-fits, and wrong prefix
		if file.IsDir() {
			continue
		}
		fn := file.Name()
		if !strings.HasSuffix(fn, ".fits") || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		bit := strings.TrimSuffix(strings.TrimPrefix(fn, r.Prefix), ".fits")
		n, err := strconv.Atoi(bit)
		if err != nil {
			continue
		}
		if count < n {
			count = n
		}
	}
	r.counter = count + 1
}

// Save writes f with the given header cards under the name for time t and
// returns the path written
func (r *Recorder) Save(t time.Time, f *camera.Frame, cards []fitsio.Card) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn, err := r.path(t)
	if err != nil {
		return "", fmt.Errorf("imgrec: %w", err)
	}
	fid, err := os.Create(fn)
	if err != nil {
		return "", fmt.Errorf("imgrec: %w", err)
	}
	defer fid.Close()
	if err = WriteFITS(fid, f, cards); err != nil {
		return "", fmt.Errorf("imgrec: writing %s: %w", fn, err)
	}
	return fn, fid.Close()
}

// WriteFITS streams a frame to w as a single 32-bit integer FITS image.
// Row 0 of the frame is the first row of the file.
func WriteFITS(w io.Writer, f *camera.Frame, cards []fitsio.Card) error {
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(32, []int{f.Width, f.Height})
	defer im.Close()
	if len(cards) > 0 {
		if err = im.Header().Append(cards...); err != nil {
			return err
		}
	}
	if err = im.Write(f.Pix); err != nil {
		return err
	}
	return fits.Write(im)
}
