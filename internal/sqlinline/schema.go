package sqlinline

// QCreateSchema bootstraps the tables used by the service. It is idempotent
// and runs at startup when DB_AUTO_MIGRATE is enabled.
const QCreateSchema = `--sql eadee1db-06e6-4424-b961-9c5e11b5b1e7
create table if not exists generation_jobs (
  id uuid primary key,
  owner_id text not null,
  kind text not null check (kind in ('comic', 'cutout', 'avatar')),
  status text not null check (status in ('processing', 'completed', 'failed')),
  stage text not null,
  progress int not null default 0 check (progress between 0 and 100),
  input_ref text not null default '',
  working_ref text not null default '',
  options jsonb not null default '{}'::jsonb,
  prompt text not null default '',
  script jsonb,
  temp_result bytea,
  output_ref text not null default '',
  error_message text not null default '',
  locale text not null default 'en',
  last_advanced_at timestamptz not null default now(),
  created_at timestamptz not null default now(),
  updated_at timestamptz not null default now()
);
create index if not exists generation_jobs_owner_created_idx on generation_jobs (owner_id, created_at desc);
create index if not exists generation_jobs_processing_idx on generation_jobs (last_advanced_at) where status = 'processing';

create table if not exists saved_faces (
  id uuid primary key,
  owner_id text not null,
  image_ref text not null,
  created_at timestamptz not null default now()
);
create index if not exists saved_faces_owner_idx on saved_faces (owner_id, created_at desc);

create table if not exists provider_credentials (
  provider text primary key,
  api_key text not null,
  properties jsonb not null default '{}'::jsonb,
  created_at timestamptz not null default now(),
  updated_at timestamptz not null default now()
);
`
