/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const associationsYAML = `associations:
  - entity: User
    name: Phonenumbers
    target: Phonenumber
    table: phonenumbers
    local_key: id
    foreign_key: user_id
    on_delete: cascade
  - entity: Phonenumber
    name: User
    target: User
    table: users
    local_key: user_id
    foreign_key: id
`

func TestLoadAssociations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "associations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(associationsYAML), 0644))

	a, err := LoadAssociations(path)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Len())

	phones, ok := a.Lookup("user", "phonenumbers")
	require.True(t, ok)
	assert.Equal(t, "phonenumbers", phones.Table)
	assert.Equal(t, "user_id", phones.ForeignKey)

	_, ok = a.Lookup("User", "Groups")
	assert.False(t, ok)

	_, err = LoadAssociations(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestAssociationsExport(t *testing.T) {
	a := testAssociations(t)
	path := filepath.Join(t.TempDir(), "out", "associations.yaml")
	require.NoError(t, a.Export(path))

	loaded, err := LoadAssociations(path)
	require.NoError(t, err)
	require.Equal(t, 2, loaded.Len())
	first := loaded.All()[0]
	assert.Equal(t, "Phonenumbers", first.Name)
	assert.Equal(t, "User.Phonenumbers -> phonenumbers.user_id", first.Description)
}

func TestAssociationsValidation(t *testing.T) {
	_, err := NewAssociations(Association{Entity: "User", Name: "Phonenumbers"})
	assert.Error(t, err)

	_, err = NewAssociations(Association{
		Entity: "User", Name: "Phonenumbers", Table: "phonenumbers",
		LocalKey: "id", ForeignKey: "user_id", OnDelete: "EXPLODE",
	})
	assert.Error(t, err)
}

func TestAssociationsAddReplaces(t *testing.T) {
	a := testAssociations(t)
	require.NoError(t, a.Add(Association{
		Entity: "User", Name: "Phonenumbers", Target: "Phonenumber",
		Table: "phones", LocalKey: "id", ForeignKey: "owner_id",
	}))
	assert.Equal(t, 2, a.Len())
	got, ok := a.Lookup("User", "Phonenumbers")
	require.True(t, ok)
	assert.Equal(t, "phones", got.Table)
}

func TestAssociationsForeignKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "associations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(associationsYAML), 0644))
	a, err := LoadAssociations(path)
	require.NoError(t, err)

	fks := a.ForeignKeys(func(entity string) (string, bool) {
		return map[string]string{"User": "users", "Phonenumber": "phonenumbers"}[entity], true
	})
	require.Len(t, fks, 1)
	assert.Equal(t, ForeignKeyConstraint{
		Table:           "phonenumbers",
		Column:          "user_id",
		ReferenceTable:  "users",
		ReferenceColumn: "id",
		OnDelete:        "CASCADE",
	}, fks[0])
	assert.Equal(t, "fk_phonenumbers_user_id", fks[0].Name())
}
