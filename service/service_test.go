package service

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoverKey_KeepsExtension(t *testing.T) {
	key := coverKey("covers/b1/", "Front.JPG")

	assert.True(t, strings.HasPrefix(key, "covers/b1/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))
	assert.NotEqual(t, key, coverKey("covers/b1/", "Front.JPG"))
}

func TestNewSMTPMailer(t *testing.T) {
	_, err := NewSMTPMailer(SMTPOptions{Host: "smtp.example.com"}, logrus.New())
	assert.Error(t, err)

	m, err := NewSMTPMailer(SMTPOptions{Host: "smtp.example.com", From: "library@example.com"}, logrus.New())
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.message("reader@example.com", "Book overdue", "Please return Dune.").WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Subject: Book overdue")
	assert.Contains(t, buf.String(), "To: reader@example.com")
	assert.Contains(t, buf.String(), "Please return Dune.")
}
