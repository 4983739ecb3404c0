// Package encryption is the credential codec for cloud recognizer API keys.
//
// Keys are stored encrypted at rest and decrypted only while a streaming
// session is being opened.
//
//	codec, err := encryption.New(encryption.Config{Key: secret})
//	sealed, err := codec.Encrypt(apiKey)
//	apiKey, err := codec.Decrypt(sealed)
package encryption
