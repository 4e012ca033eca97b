package sshx

import (
	"io"

	"github.com/pkg/sftp"
)

// Upload writes the contents of the reader to the given path on the
// remote host, creating or truncating the file.
func (client *Client) Upload(path string, r io.Reader) error {
	sftpClient, err := sftp.NewClient(client.Client)
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(sftpClient.Join(path, "..")); err != nil {
		return err
	}

	file, err := sftpClient.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if _, err := io.Copy(file, r); err != nil {
		return err
	}

	return file.Close()
}

// Download copies the contents of the given remote file into the
// writer.
func (client *Client) Download(path string, w io.Writer) error {
	sftpClient, err := sftp.NewClient(client.Client)
	if err != nil {
		return err
	}
	defer sftpClient.Close()

	file, err := sftpClient.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = io.Copy(w, file)
	return err
}
