// Package fandom scrapes episode recap text from allow-listed wikis. Only
// wikis explicitly configured per show are ever fetched; everything else is
// rejected before any network call.
package fandom
