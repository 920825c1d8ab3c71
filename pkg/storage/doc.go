// Package storage writes downloaded media into a project directory.
//
// Files are named after the item id plus an extension taken from the source
// URL or, failing that, from the response content type. Every write goes to
// a temporary file first and is renamed into place, so a crash never leaves
// a truncated file under the final name.
//
//	manager, err := storage.NewManager("downloads/cats")
//	if err != nil {
//	    return err // output directory could not be created
//	}
//	path, size, err := manager.Save(body, "1234567890", ".jpg")
package storage
