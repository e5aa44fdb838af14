// Package main implements the vaultutil CLI: a thin, file-backed front end
// over repo/keyrepo for creating a repository and putting, getting, listing,
// and garbage-collecting keys in it.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/coldvault/vault/pkg/storebackend/filestore"
	"github.com/coldvault/vault/repo"
	"github.com/coldvault/vault/repo/keyrepo"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	var err error
	switch command {
	case "help", "--help", "-h":
		printUsage()
		return
	case "create":
		err = createCommand(os.Args[2:])
	case "put":
		err = putCommand(os.Args[2:])
	case "get":
		err = getCommand(os.Args[2:])
	case "ls":
		err = lsCommand(os.Args[2:])
	case "gc":
		err = gcCommand(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`vaultutil - inspect and edit a coldvault repository

Usage:
  vaultutil create <dir>                create a new repository at dir
  vaultutil put    <dir> <key> <file>   write file's contents to key
  vaultutil get    <dir> <key>          print key's contents to stdout
  vaultutil ls     <dir>                list every key in the repository
  vaultutil gc     <dir>                reclaim storage unreferenced by the last commit`)
}

// openKeyRepo opens the on-disk store and wraps it in a KeyRepo. Both the
// store (which holds the host-level flock) and the repo (which holds the
// on-store Lock block) must be closed by the caller, store last.
func openKeyRepo(dir string) (*keyrepo.Repo, *filestore.Store, error) {
	store, err := filestore.Open(dir)
	if err != nil {
		return nil, nil, err
	}
	k, err := keyrepo.Open(store, repo.DefaultConfig(), "")
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return k, store, nil
}

func createCommand(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: vaultutil create <dir>")
	}
	k, store, err := openKeyRepo(args[0])
	if err != nil {
		return err
	}
	k.Close()
	return store.Close()
}

func putCommand(args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: vaultutil put <dir> <key> <file>")
	}
	dir, key, path := args[0], args[1], args[2]

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	k, store, err := openKeyRepo(dir)
	if err != nil {
		return err
	}
	defer store.Close()
	defer k.Close()

	obj := k.Insert(key)
	if _, err := obj.Write(data); err != nil {
		return err
	}
	if err := obj.Commit(); err != nil {
		return err
	}
	return k.Commit()
}

func getCommand(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: vaultutil get <dir> <key>")
	}
	dir, key := args[0], args[1]

	k, store, err := openKeyRepo(dir)
	if err != nil {
		return err
	}
	defer store.Close()
	defer k.Close()

	obj, ok := k.Get(key)
	if !ok {
		return fmt.Errorf("key %q not found", key)
	}
	_, err = io.Copy(os.Stdout, obj)
	return err
}

func lsCommand(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: vaultutil ls <dir>")
	}
	k, store, err := openKeyRepo(args[0])
	if err != nil {
		return err
	}
	defer store.Close()
	defer k.Close()

	for _, key := range k.Keys() {
		fmt.Println(key)
	}
	return nil
}

func gcCommand(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: vaultutil gc <dir>")
	}
	k, store, err := openKeyRepo(args[0])
	if err != nil {
		return err
	}
	defer store.Close()
	defer k.Close()

	stats, err := k.Clean()
	if err != nil {
		return err
	}
	fmt.Printf("removed %d blocks, %d packs, %d headers (%d chunks repacked)\n",
		stats.RemovedBlocks, stats.RemovedPacks, stats.RemovedHeaders, stats.RepackedAlive)
	return nil
}
