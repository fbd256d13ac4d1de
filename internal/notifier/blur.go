package notifier

import (
	"image/jpeg"
	"os"

	"github.com/disintegration/imaging"

	"github.com/basket/pixivbot-go/internal/errs"
	"github.com/basket/pixivbot-go/internal/filecache"
)

const blurSigma = 24.0

// BlurredPath returns the path of a blurred derivative of the image at
// path, rendering and caching it on first use under cache, keyed by
// url+"#blur" — so the client-side preview thumbnail built before the user
// taps "reveal" is never the raw image, defense-in-depth beyond the native
// spoiler flag alone.
func BlurredPath(cache *filecache.Cache, url, path string) (string, error) {
	blurKey := url + "#blur"
	if cached, ok := cache.Get(blurKey); ok {
		return cached, nil
	}

	src, err := imaging.Open(path)
	if err != nil {
		return "", errs.Wrap(errs.Db, err, "open image for blur", "could not prepare image")
	}
	blurred := imaging.Blur(src, blurSigma)

	tmp, err := os.CreateTemp("", "blur-*.jpg")
	if err != nil {
		return "", errs.Wrap(errs.Db, err, "create blur temp file", "could not prepare image")
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := jpeg.Encode(tmp, blurred, &jpeg.Options{Quality: 80}); err != nil {
		return "", errs.Wrap(errs.Db, err, "encode blurred image", "could not prepare image")
	}
	if _, err := tmp.Seek(0, 0); err != nil {
		return "", errs.Wrap(errs.Db, err, "rewind blur temp file", "could not prepare image")
	}

	return cache.Put(blurKey, tmp)
}
