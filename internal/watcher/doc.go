// Package watcher reports changes to the article sources under a content
// directory.
//
// Changes are detected with fsnotify, filtered down to article files and
// debounced so that an editor's save-rename-write sequence, or a git
// checkout touching many files, arrives as a single batch.
//
//	w, err := watcher.New(watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go w.Start(ctx, "content/articles")
//
//	for batch := range w.Events() {
//	    rebuild(batch)
//	}
package watcher
